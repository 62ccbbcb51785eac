package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer reads a consumer group's share of one or more topics and commits
// offsets explicitly once a batch has been dealt with.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topics   []string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// NewConsumer constructs a group Consumer. Offsets are only committed through Commit.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			GroupTopics: cfg.Topics,
			MinBytes:    minBytes,
			MaxBytes:    maxBytes,
			MaxWait:     maxWait,
			StartOffset: kafkago.FirstOffset,
		}),
	}
}

// FetchBatch blocks for the first message, then keeps collecting until max
// messages are held or window has elapsed since the first one arrived.
func (c *Consumer) FetchBatch(ctx context.Context, max int, window time.Duration) ([]kafkago.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafkago.Message{first}

	windowCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	for len(batch) < max {
		msg, err := c.reader.FetchMessage(windowCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// Commit marks msgs as processed for the group.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close leaves the group and releases the connection.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Headers flattens message headers into a map; later duplicates win.
func Headers(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
