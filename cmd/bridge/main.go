package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/app"
	"github.com/your-org/imageflow/internal/bridge"
	"github.com/your-org/imageflow/internal/ops"
	"github.com/your-org/imageflow/pkg/storage/objectstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Start(ctx, "bridge")
	if err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	if err := run(ctx, a); err != nil {
		a.Logger.Error("bridge stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

func run(ctx context.Context, a *app.App) error {
	cfg := a.Config

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}
	a.OnClose(func(context.Context) error { return store.Close() })

	b, err := bridge.New(bridge.Params{
		Listener:  store,
		Publisher: a.Producer(),
		Topic:     cfg.Kafka.EventsTopic,
		Logger:    a.Logger.With(zap.String("bucket", store.Bucket())),
	})
	if err != nil {
		return err
	}

	return a.Run(ctx, map[string]ops.Check{
		"storage": store.Ping,
		"kafka":   a.KafkaCheck(),
	}, b)
}
