// Package app holds the start-up and shutdown sequence shared by the
// imageflow processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/imageflow/internal/ops"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/config"
	"github.com/your-org/imageflow/pkg/kafka"
	"github.com/your-org/imageflow/pkg/logger"
	"github.com/your-org/imageflow/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

// Runner is a long-running loop that returns nil once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// App carries the configuration, logger and cleanup hooks of one process.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	closers []func(context.Context) error
}

// Start loads configuration and initializes logging and tracing for process.
func Start(ctx context.Context, process string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, process)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name + "-" + process,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &App{Config: cfg, Logger: logr}
	a.OnClose(traceShutdown)
	return a, nil
}

// OnClose registers fn to run on Close. Hooks run in reverse order.
func (a *App) OnClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close runs the registered hooks and flushes the logger.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Error("shutdown hook failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

// Producer returns a producer for the configured brokers, closed on Close.
func (a *App) Producer() *kafka.Producer {
	kc := a.Config.Kafka
	p := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:        kc.Brokers,
		BatchSize:      kc.BatchSize,
		BatchTimeout:   kc.BatchTimeout,
		Compression:    kafka.CompressionFromString(kc.CompressionCodec),
		RequiredAcks:   kafkago.RequireAll,
		MaxAttempts:    kc.Retries,
		PublishTimeout: kc.PublishTimeout,
	})
	a.OnClose(p.Close)
	return p
}

// Source returns a batching source for group over topics, closed on Close.
func (a *App) Source(group string, topics ...string) *router.KafkaSource {
	c := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: a.Config.Kafka.Brokers,
		GroupID: group,
		Topics:  topics,
	})
	a.OnClose(func(context.Context) error { return c.Close() })
	return router.NewKafkaSource(c, a.Config.Consumer.BatchSize, a.Config.Consumer.BatchWindow)
}

// KafkaCheck is a readiness check for the configured brokers.
func (a *App) KafkaCheck() ops.Check {
	brokers := a.Config.Kafka.Brokers
	return func(ctx context.Context) error { return kafka.Ping(ctx, brokers) }
}

// Run serves the ops endpoint and every runner until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context, checks map[string]ops.Check, runners ...Runner) error {
	hc := a.Config.HTTP
	server := ops.Server(hc.Addr, ops.NewHandler(a.Logger, hc.ReadTimeout, checks), hc.ReadTimeout, hc.WriteTimeout, hc.IdleTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("ops server starting", zap.String("addr", hc.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	for _, r := range runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}
