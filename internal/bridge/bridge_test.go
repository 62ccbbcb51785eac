package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
)

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type flakyPublisher struct {
	fakePublisher
	mu       sync.Mutex
	failures int
	attempts int
}

func (p *flakyPublisher) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	p.attempts++
	fail := p.attempts <= p.failures
	p.mu.Unlock()
	if fail {
		return errors.New("leader not available")
	}
	return p.fakePublisher.Publish(ctx, topic, key, value, headers)
}

func (p *flakyPublisher) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

type fakeListener struct {
	infos  []notification.Info
	events []string
}

func (l *fakeListener) Listen(ctx context.Context, events []string) <-chan notification.Info {
	l.events = events
	ch := make(chan notification.Info, len(l.infos))
	for _, info := range l.infos {
		ch <- info
	}
	l.infos = nil
	close(ch)
	return ch
}

func createdEvent(bucket, key string) notification.Event {
	var e notification.Event
	e.EventName = "s3:ObjectCreated:Put"
	e.S3.Bucket.Name = bucket
	e.S3.Object.Key = key
	return e
}

func TestForward_RoundTripsThroughEnvelopeParser(t *testing.T) {
	pub := &fakePublisher{}
	b, err := New(Params{Listener: &fakeListener{}, Publisher: pub, Topic: "events", Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, b.Forward(context.Background(), []notification.Event{createdEvent("images", "vacation+photo.png")}))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "events", msg.topic)
	assert.Equal(t, pipeline.EventObjectCreated, msg.headers[pipeline.AttrEventType])
	assert.NotEmpty(t, msg.headers[router.AttrMessageID])

	events, err := pipeline.ParseUploadEvents(msg.value)
	require.NoError(t, err)
	assert.Equal(t, []pipeline.UploadEvent{{Bucket: "images", Key: "vacation photo.png"}}, events)
}

func TestForward_PublishFailure(t *testing.T) {
	b, err := New(Params{Listener: &fakeListener{}, Publisher: &fakePublisher{err: errors.New("broker down")}, Topic: "events"})
	require.NoError(t, err)

	err = b.Forward(context.Background(), []notification.Event{createdEvent("images", "a.jpg")})
	assert.ErrorIs(t, err, pipeline.ErrTransport)
}

func TestRun_ForwardsUntilCancelled(t *testing.T) {
	pub := &fakePublisher{}
	l := &fakeListener{infos: []notification.Info{
		{Records: []notification.Event{createdEvent("images", "a.jpg")}},
		{Err: errors.New("stream hiccup")},
		{},
		{Records: []notification.Event{createdEvent("images", "b.jpeg")}},
	}}
	b, err := New(Params{Listener: l, Publisher: pub, Topic: "events", Backoff: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"s3:ObjectCreated:*"}, l.events)
}

func TestRun_RetriesFailedPublish(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	l := &fakeListener{infos: []notification.Info{
		{Records: []notification.Event{createdEvent("images", "a.jpg")}},
	}}
	b, err := New(Params{Listener: l, Publisher: pub, Topic: "events", Backoff: 5 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, pub.attemptCount())

	events, err := pipeline.ParseUploadEvents(pub.msgs[0].value)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", events[0].Key)
}

func TestRun_StopsRetryingOnCancel(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	l := &fakeListener{infos: []notification.Info{
		{Records: []notification.Event{createdEvent("images", "a.jpg")}},
	}}
	b, err := New(Params{Listener: l, Publisher: pub, Topic: "events", Backoff: 5 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, b.Run(ctx))
	assert.Zero(t, pub.count())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Params{Topic: "events"})
	assert.Error(t, err)

	_, err = New(Params{Listener: &fakeListener{}, Publisher: &fakePublisher{}})
	assert.Error(t, err)
}
