// Package router fans messages from the events topic out to independently
// filtered subscriptions and redrives failed messages to retry or dead-letter
// topics.
package router

import (
	"context"
	"errors"
	"maps"
	"strconv"
)

// Attributes maintained by the router itself.
const (
	AttrMessageID     = "message_id"
	AttrReceiveCount  = "receive_count"
	AttrFailureReason = "failure_reason"
	AttrSourceTopic   = "source_topic"
)

// Message is one delivery handed to a subscription handler.
type Message struct {
	ID           string
	Topic        string
	Key          []byte
	Body         []byte
	Attributes   map[string]string
	ReceiveCount int

	// ack is the transport handle used to commit the delivery.
	ack any
}

// receiveCount reads the delivery counter; a message without one is on its
// first delivery.
func receiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[AttrReceiveCount])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Failure reports one message the handler could not process. Attributes are
// merged into the redriven copy of the message.
type Failure struct {
	MessageID  string
	Err        error
	Attributes map[string]string
}

// BatchResult lists the failed subset of a batch. Messages not listed are
// treated as processed.
type BatchResult struct {
	Failures []Failure
}

// Fail records a failed message.
func (r *BatchResult) Fail(id string, err error) {
	r.Failures = append(r.Failures, Failure{MessageID: id, Err: err})
}

// FailWith records a failed message together with attributes to stamp on its
// redriven copy.
func (r *BatchResult) FailWith(id string, err error, attrs map[string]string) {
	r.Failures = append(r.Failures, Failure{MessageID: id, Err: err, Attributes: attrs})
}

// Err joins every failure into one error, or returns nil.
func (r BatchResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Handler processes a batch and reports only the messages that failed.
type Handler interface {
	HandleBatch(ctx context.Context, msgs []Message) BatchResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msgs []Message) BatchResult

func (f HandlerFunc) HandleBatch(ctx context.Context, msgs []Message) BatchResult {
	return f(ctx, msgs)
}

// PerMessage builds a Handler that runs fn for each message independently.
func PerMessage(fn func(ctx context.Context, msg Message) error) Handler {
	return HandlerFunc(func(ctx context.Context, msgs []Message) BatchResult {
		var res BatchResult
		for _, msg := range msgs {
			if err := fn(ctx, msg); err != nil {
				res.Fail(msg.ID, err)
			}
		}
		return res
	})
}

// FilterPolicy routes on message attributes: every named attribute must be
// present with a value from its allow-list. An empty policy matches everything.
type FilterPolicy map[string][]string

// Matches reports whether attrs satisfy the policy.
func (p FilterPolicy) Matches(attrs map[string]string) bool {
	for name, allowed := range p {
		v, ok := attrs[name]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RedrivePolicy bounds redelivery of failed messages. A failed message that
// has been received fewer than MaxReceiveCount times is republished to
// RetryTopic; otherwise it goes to DeadLetterTopic, or is dropped when no
// dead-letter topic is configured.
type RedrivePolicy struct {
	RetryTopic      string
	DeadLetterTopic string
	MaxReceiveCount int
}

func redriveAttributes(msg Message, count int, f Failure) map[string]string {
	attrs := maps.Clone(msg.Attributes)
	if attrs == nil {
		attrs = map[string]string{}
	}
	maps.Copy(attrs, f.Attributes)
	attrs[AttrMessageID] = msg.ID
	attrs[AttrReceiveCount] = strconv.Itoa(count)
	attrs[AttrSourceTopic] = msg.Topic
	if f.Err != nil {
		attrs[AttrFailureReason] = f.Err.Error()
	}
	return attrs
}
