package router

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/your-org/imageflow/pkg/kafka"
)

// KafkaSource adapts a group consumer to Source with queue-style batching.
type KafkaSource struct {
	consumer  *kafka.Consumer
	batchSize int
	window    time.Duration
}

// NewKafkaSource wraps consumer. batchSize and window bound each fetched batch.
func NewKafkaSource(consumer *kafka.Consumer, batchSize int, window time.Duration) *KafkaSource {
	if batchSize < 1 {
		batchSize = 1
	}
	return &KafkaSource{consumer: consumer, batchSize: batchSize, window: window}
}

func (s *KafkaSource) Fetch(ctx context.Context) ([]Message, error) {
	raw, err := s.consumer.FetchBatch(ctx, s.batchSize, s.window)
	msgs := make([]Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, fromKafka(m))
	}
	if err != nil && len(msgs) == 0 {
		return nil, err
	}
	return msgs, nil
}

func (s *KafkaSource) Commit(ctx context.Context, msgs []Message) error {
	raw := make([]kafkago.Message, 0, len(msgs))
	for _, m := range msgs {
		if km, ok := m.ack.(kafkago.Message); ok {
			raw = append(raw, km)
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return s.consumer.Commit(ctx, raw...)
}

func fromKafka(m kafkago.Message) Message {
	attrs := kafka.Headers(m)
	id := attrs[AttrMessageID]
	if id == "" {
		id = fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset)
	}
	return Message{
		ID:           id,
		Topic:        m.Topic,
		Key:          m.Key,
		Body:         m.Value,
		Attributes:   attrs,
		ReceiveCount: receiveCount(attrs),
		ack:          m,
	}
}
