package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/app"
	"github.com/your-org/imageflow/internal/metadata"
	"github.com/your-org/imageflow/internal/ops"
	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/catalog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Start(ctx, "metadata")
	if err != nil {
		log.Fatalf("start metadata: %v", err)
	}
	if err := run(ctx, a); err != nil {
		a.Logger.Error("metadata stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

func run(ctx context.Context, a *app.App) error {
	cfg := a.Config
	if err := errors.Join(cfg.Catalog.Validate(), cfg.Redrive.Validate()); err != nil {
		return err
	}

	store, err := catalog.Open(ctx, catalog.Config{
		Driver:      cfg.Catalog.Driver,
		DSN:         cfg.Catalog.DSN,
		Table:       cfg.Catalog.Table,
		AutoMigrate: cfg.Catalog.AutoMigrate,
		OpTimeout:   cfg.Catalog.OpTimeout,
		MaxConns:    cfg.Catalog.MaxConns,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.OnClose(func(context.Context) error { return store.Close() })

	sub, err := router.New(router.Params{
		Name:    "metadata",
		Filter:  router.FilterPolicy{pipeline.AttrMetadataType: pipeline.MetadataAttributes},
		Handler: metadata.NewUpdater(store, a.Logger),
		Redrive: &router.RedrivePolicy{
			RetryTopic:      cfg.Kafka.MetadataRetryTopic,
			MaxReceiveCount: cfg.Redrive.MaxReceiveCount,
		},
		Source:    a.Source(cfg.Kafka.MetadataGroup, cfg.Kafka.EventsTopic, cfg.Kafka.MetadataRetryTopic),
		Publisher: a.Producer(),
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}

	return a.Run(ctx, map[string]ops.Check{
		"catalog": store.Ping,
		"kafka":   a.KafkaCheck(),
	}, sub)
}
