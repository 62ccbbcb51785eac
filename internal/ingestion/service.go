package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
)

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Service runs the processing path: unwrap the envelope, validate each
// upload, record it and announce the recorded image.
type Service struct {
	validator *pipeline.Validator
	recorder  *Recorder
	publisher Publisher
	topic     string
	logger    *zap.Logger
	now       func() time.Time
}

type Params struct {
	Validator *pipeline.Validator
	Recorder  *Recorder
	Publisher Publisher
	// Topic receives image_recorded events.
	Topic  string
	Logger *zap.Logger
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	v := p.Validator
	if v == nil {
		v = pipeline.NewValidator()
	}
	return &Service{
		validator: v,
		recorder:  p.Recorder,
		publisher: p.Publisher,
		topic:     p.Topic,
		logger:    p.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleBatch processes every message independently and reports the ones
// that failed so only they are redriven.
func (s *Service) HandleBatch(ctx context.Context, msgs []router.Message) router.BatchResult {
	var res router.BatchResult
	for _, msg := range msgs {
		if err := s.ProcessMessage(ctx, msg); err != nil {
			s.logger.Warn("message failed",
				zap.String("message_id", msg.ID),
				zap.Int("receive_count", msg.ReceiveCount),
				zap.Bool("rejected", pipeline.IsRejection(err)),
			)
			var attrs map[string]string
			if keys := pipeline.FailedKeys(err); len(keys) > 0 {
				attrs = map[string]string{pipeline.AttrFailedKeys: pipeline.EncodeFailedKeys(keys)}
			}
			res.FailWith(msg.ID, err, attrs)
		}
	}
	return res
}

// ProcessMessage handles every upload record carried by msg. A failing record
// does not stop its siblings; the message fails if any record failed, and
// each record failure is a *pipeline.KeyError naming its key.
func (s *Service) ProcessMessage(ctx context.Context, msg router.Message) error {
	events, err := pipeline.ParseUploadEvents(msg.Body)
	if err != nil {
		s.logger.Error("unparseable upload notification", zap.String("message_id", msg.ID), zap.Error(err))
		return err
	}

	var errs []error
	for _, evt := range events {
		if err := s.processEvent(ctx, evt); err != nil {
			errs = append(errs, &pipeline.KeyError{Key: evt.Key, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s *Service) processEvent(ctx context.Context, evt pipeline.UploadEvent) error {
	s.logger.Info("processing upload", zap.String("key", evt.Key), zap.String("bucket", evt.Bucket))

	outcome, err := s.validator.Validate(evt)
	if err != nil {
		s.logger.Warn("upload rejected",
			zap.String("key", evt.Key),
			zap.String("reason", outcome.Reason),
			zap.Error(err),
		)
		return err
	}

	created, err := s.recorder.Record(ctx, evt)
	if err != nil {
		s.logger.Error("record upload failed", zap.String("key", evt.Key), zap.Error(err))
		return err
	}

	return s.announce(ctx, evt, created)
}

func (s *Service) announce(ctx context.Context, evt pipeline.UploadEvent, created bool) error {
	payload, err := json.Marshal(ImageRecordedEvent{
		ID:         evt.Key,
		Bucket:     evt.Bucket,
		Created:    created,
		RecordedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal image recorded event: %w", err)
	}

	headers := map[string]string{
		router.AttrMessageID:   uuid.NewString(),
		pipeline.AttrEventType: pipeline.EventImageRecorded,
	}
	if err := s.publisher.Publish(ctx, s.topic, []byte(evt.Key), payload, headers); err != nil {
		return fmt.Errorf("publish image recorded %q: %w", evt.Key, errors.Join(pipeline.ErrTransport, err))
	}
	return nil
}
