package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Source delivers batches of messages and commits them once handled.
type Source interface {
	Fetch(ctx context.Context) ([]Message, error)
	Commit(ctx context.Context, msgs []Message) error
}

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Subscription binds a source to a handler through a filter policy and an
// optional redrive policy.
type Subscription struct {
	name      string
	filter    FilterPolicy
	handler   Handler
	redrive   *RedrivePolicy
	source    Source
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	backoff   time.Duration
}

type Params struct {
	Name      string
	Filter    FilterPolicy
	Handler   Handler
	Redrive   *RedrivePolicy
	Source    Source
	Publisher Publisher
	Logger    *zap.Logger
}

// New validates p and constructs a Subscription.
func New(p Params) (*Subscription, error) {
	if p.Name == "" {
		return nil, errors.New("router: subscription name is required")
	}
	if p.Handler == nil {
		return nil, fmt.Errorf("router: %s: handler is required", p.Name)
	}
	if p.Source == nil {
		return nil, fmt.Errorf("router: %s: source is required", p.Name)
	}
	if p.Redrive != nil {
		if p.Publisher == nil {
			return nil, fmt.Errorf("router: %s: redrive requires a publisher", p.Name)
		}
		if p.Redrive.MaxReceiveCount < 1 {
			return nil, fmt.Errorf("router: %s: max receive count must be at least 1", p.Name)
		}
		if p.Redrive.RetryTopic == "" && p.Redrive.MaxReceiveCount > 1 {
			return nil, fmt.Errorf("router: %s: retry topic is required when max receive count > 1", p.Name)
		}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscription{
		name:      p.Name,
		filter:    p.Filter,
		handler:   p.Handler,
		redrive:   p.Redrive,
		source:    p.Source,
		publisher: p.Publisher,
		logger:    logger.With(zap.String("subscription", p.Name)),
		tracer:    otel.Tracer("github.com/your-org/imageflow/internal/router"),
		backoff:   time.Second,
	}, nil
}

// Name returns the subscription name.
func (s *Subscription) Name() string {
	return s.name
}

// Run consumes batches until ctx is cancelled. A failure to redrive or commit
// ends the loop with an error so the uncommitted batch is redelivered to the
// next consumer instead of being lost.
func (s *Subscription) Run(ctx context.Context) error {
	s.logger.Info("subscription started")
	for {
		batch, err := s.source.Fetch(ctx)
		if ctx.Err() != nil {
			s.logger.Info("subscription stopped")
			return nil
		}
		if err != nil {
			s.logger.Warn("fetch batch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff):
			}
			continue
		}

		if err := s.Dispatch(ctx, batch); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if err := s.source.Commit(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: commit batch: %w", s.name, err)
		}
	}
}

// Dispatch runs one batch through the filter, the handler and the redrive
// policy. Only the failed subset is redriven.
func (s *Subscription) Dispatch(ctx context.Context, batch []Message) error {
	ctx, span := s.tracer.Start(ctx, "subscription.dispatch", trace.WithAttributes(
		attribute.String("subscription", s.name),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	matched := make([]Message, 0, len(batch))
	for _, msg := range batch {
		if s.filter.Matches(msg.Attributes) {
			matched = append(matched, msg)
			continue
		}
		s.logger.Debug("message filtered out", zap.String("message_id", msg.ID), zap.String("topic", msg.Topic))
	}
	span.SetAttributes(attribute.Int("batch.matched", len(matched)))
	if len(matched) == 0 {
		return nil
	}

	res := s.handler.HandleBatch(ctx, matched)
	span.SetAttributes(attribute.Int("batch.failed", len(res.Failures)))
	if len(res.Failures) == 0 {
		return nil
	}
	span.SetStatus(codes.Error, "partial batch failure")

	byID := make(map[string]Message, len(matched))
	for _, msg := range matched {
		byID[msg.ID] = msg
	}
	for _, f := range res.Failures {
		msg, ok := byID[f.MessageID]
		if !ok {
			s.logger.Warn("handler reported unknown message", zap.String("message_id", f.MessageID), zap.Error(f.Err))
			continue
		}
		if err := s.redriveMessage(ctx, msg, f); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

func (s *Subscription) redriveMessage(ctx context.Context, msg Message, f Failure) error {
	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.Int("receive_count", msg.ReceiveCount),
		zap.Error(f.Err),
	}

	if s.redrive == nil {
		s.logger.Error("message failed; no redrive configured", fields...)
		return nil
	}

	if msg.ReceiveCount < s.redrive.MaxReceiveCount {
		attrs := redriveAttributes(msg, msg.ReceiveCount+1, f)
		if err := s.publisher.Publish(ctx, s.redrive.RetryTopic, msg.Key, msg.Body, attrs); err != nil {
			return fmt.Errorf("redrive %s to %s: %w", msg.ID, s.redrive.RetryTopic, err)
		}
		s.logger.Warn("message failed; scheduled for retry", append(fields, zap.String("retry_topic", s.redrive.RetryTopic))...)
		return nil
	}

	if s.redrive.DeadLetterTopic == "" {
		s.logger.Error("message failed; retry budget exhausted, dropping", fields...)
		return nil
	}

	attrs := redriveAttributes(msg, msg.ReceiveCount, f)
	if err := s.publisher.Publish(ctx, s.redrive.DeadLetterTopic, msg.Key, msg.Body, attrs); err != nil {
		return fmt.Errorf("dead-letter %s to %s: %w", msg.ID, s.redrive.DeadLetterTopic, err)
	}
	s.logger.Error("message failed; moved to dead-letter topic", append(fields, zap.String("dead_letter_topic", s.redrive.DeadLetterTopic))...)
	return nil
}
