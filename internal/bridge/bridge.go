// Package bridge forwards object-created notifications of the image bucket to
// the events topic.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7/pkg/notification"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/storage/objectstore"
)

// Listener streams bucket notifications.
type Listener interface {
	Listen(ctx context.Context, events []string) <-chan notification.Info
}

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Bridge republishes bucket notifications in the envelope the processing
// subscription consumes.
type Bridge struct {
	listener  Listener
	publisher Publisher
	topic     string
	logger    *zap.Logger
	backoff   time.Duration
}

type Params struct {
	Listener  Listener
	Publisher Publisher
	Topic     string
	Logger    *zap.Logger
	// Backoff is the pause before listening again after the stream ends and
	// between publish attempts.
	Backoff time.Duration
}

// New constructs a Bridge.
func New(p Params) (*Bridge, error) {
	if p.Listener == nil || p.Publisher == nil {
		return nil, errors.New("bridge: listener and publisher are required")
	}
	if p.Topic == "" {
		return nil, errors.New("bridge: topic is required")
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		listener:  p.Listener,
		publisher: p.Publisher,
		topic:     p.Topic,
		logger:    logger,
		backoff:   backoff,
	}, nil
}

type notificationBody struct {
	Records []notification.Event `json:"Records"`
}

// Run forwards notifications until ctx is cancelled, listening again whenever
// the notification stream ends.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge started", zap.String("topic", b.topic))
	for {
		for info := range b.listener.Listen(ctx, objectstore.ObjectCreatedEvents) {
			if info.Err != nil {
				b.logger.Warn("bucket notification error", zap.Error(info.Err))
				continue
			}
			if len(info.Records) == 0 {
				continue
			}
			if err := b.deliver(ctx, info.Records); err != nil {
				b.logger.Error("notification not forwarded before shutdown", zap.Int("records", len(info.Records)), zap.Error(err))
				return nil
			}
		}

		select {
		case <-ctx.Done():
			b.logger.Info("bridge stopped")
			return nil
		case <-time.After(b.backoff):
			b.logger.Info("notification stream ended; listening again")
		}
	}
}

// deliver forwards records, retrying after each failure until the publish
// succeeds or ctx is cancelled. The notification stream cannot be replayed, so
// giving up would lose the upload.
func (b *Bridge) deliver(ctx context.Context, records []notification.Event) error {
	for attempt := 1; ; attempt++ {
		err := b.Forward(ctx, records)
		if err == nil {
			return nil
		}
		b.logger.Warn("forward notification failed; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", b.backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), err)
		case <-time.After(b.backoff):
		}
	}
}

// Forward publishes records as one object_created message.
func (b *Bridge) Forward(ctx context.Context, records []notification.Event) error {
	body, err := json.Marshal(notificationBody{Records: records})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	id := uuid.NewString()
	headers := map[string]string{
		router.AttrMessageID:   id,
		pipeline.AttrEventType: pipeline.EventObjectCreated,
	}
	if err := b.publisher.Publish(ctx, b.topic, []byte(records[0].S3.Object.Key), body, headers); err != nil {
		return fmt.Errorf("publish notification %s: %w", id, errors.Join(pipeline.ErrTransport, err))
	}
	b.logger.Debug("notification forwarded",
		zap.String("message_id", id),
		zap.String("key", records[0].S3.Object.Key),
		zap.Int("records", len(records)),
	)
	return nil
}
