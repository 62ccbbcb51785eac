package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/pkg/config"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func testApp() *App {
	return &App{
		Config: &config.Config{HTTP: config.HTTPConfig{
			Addr:         "127.0.0.1:0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
		}},
		Logger: zap.NewNop(),
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := testApp()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx, nil, runnerFunc(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		}))
	}()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RunnerFailureStopsProcess(t *testing.T) {
	a := testApp()
	boom := errors.New("commit batch: broker gone")

	waiting := runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	failing := runnerFunc(func(context.Context) error { return boom })

	err := a.Run(context.Background(), nil, waiting, failing)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestClose_RunsHooksInReverse(t *testing.T) {
	a := testApp()
	var order []int
	a.OnClose(func(context.Context) error { order = append(order, 1); return nil })
	a.OnClose(func(context.Context) error { order = append(order, 2); return errors.New("ignored") })

	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
