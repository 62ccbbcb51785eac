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
	"github.com/your-org/imageflow/internal/notify"
	"github.com/your-org/imageflow/internal/ops"
	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/mailer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Start(ctx, "mailer")
	if err != nil {
		log.Fatalf("start mailer: %v", err)
	}
	if err := run(ctx, a); err != nil {
		a.Logger.Error("mailer stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

func run(ctx context.Context, a *app.App) error {
	cfg := a.Config
	if err := errors.Join(cfg.Mail.Validate(), cfg.Redrive.Validate()); err != nil {
		return err
	}

	smtp, err := mailer.NewSMTP(mailer.Config{
		Host:     cfg.Mail.Host(),
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		Timeout:  cfg.Mail.Timeout,
	})
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(notify.Params{
		Mailer: smtp,
		From:   cfg.Mail.From,
		To:     cfg.Mail.To,
		Logger: a.Logger,
	})

	confirmation, err := router.New(router.Params{
		Name:    "confirmation",
		Filter:  router.FilterPolicy{pipeline.AttrEventType: {pipeline.EventImageRecorded}},
		Handler: notify.NewConfirmationHandler(notifier, a.Logger),
		Redrive: &router.RedrivePolicy{
			RetryTopic:      cfg.Kafka.ConfirmationRetryTopic,
			MaxReceiveCount: cfg.Redrive.MaxReceiveCount,
		},
		Source:    a.Source(cfg.Kafka.ConfirmationGroup, cfg.Kafka.EventsTopic, cfg.Kafka.ConfirmationRetryTopic),
		Publisher: a.Producer(),
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}

	rejection, err := router.New(router.Params{
		Name:    "rejection",
		Handler: notify.NewRejectionHandler(notifier, nil, a.Logger),
		Source:  a.Source(cfg.Kafka.RejectionGroup, cfg.Kafka.DeadLetterTopic),
		Logger:  a.Logger,
	})
	if err != nil {
		return err
	}

	return a.Run(ctx, map[string]ops.Check{
		"kafka": a.KafkaCheck(),
	}, confirmation, rejection)
}
