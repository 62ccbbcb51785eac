package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/catalog"
)

type publishedMsg struct {
	topic   string
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	msgs []publishedMsg
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _, value []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{topic: topic, value: value, headers: headers})
	return nil
}

type failingStore struct {
	catalog.Store
	failKey string
}

func (s failingStore) Create(ctx context.Context, id string) (bool, error) {
	if id == s.failKey {
		return false, errors.New("connection reset")
	}
	return s.Store.Create(ctx, id)
}

func notification(t *testing.T, keys ...string) []byte {
	t.Helper()
	records := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		records = append(records, map[string]any{
			"s3": map[string]any{
				"bucket": map[string]any{"name": "images"},
				"object": map[string]any{"key": k},
			},
		})
	}
	inner, err := json.Marshal(map[string]any{"Records": records})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"Type": "Notification", "Message": string(inner)})
	require.NoError(t, err)
	return body
}

func newTestService(store catalog.Store, pub Publisher) *Service {
	logger := zap.NewNop()
	return NewService(Params{
		Recorder:  NewRecorder(store, logger),
		Publisher: pub,
		Topic:     "events",
		Logger:    logger,
	})
}

func TestProcessMessage_AcceptsCaseInsensitiveJPEG(t *testing.T) {
	store := catalog.NewMemoryStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	err := svc.ProcessMessage(context.Background(), router.Message{ID: "m1", Body: notification(t, "sunset.JPG")})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "sunset.JPG")
	require.NoError(t, err)
	assert.Equal(t, "sunset.JPG", rec.ID)
	assert.Empty(t, rec.Metadata)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "events", pub.msgs[0].topic)
	assert.Equal(t, pipeline.EventImageRecorded, pub.msgs[0].headers[pipeline.AttrEventType])
	assert.NotEmpty(t, pub.msgs[0].headers[router.AttrMessageID])

	var evt ImageRecordedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &evt))
	assert.Equal(t, "sunset.JPG", evt.ID)
	assert.Equal(t, "images", evt.Bucket)
	assert.True(t, evt.Created)
}

func TestProcessMessage_RejectsUnsupportedType(t *testing.T) {
	store := catalog.NewMemoryStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	err := svc.ProcessMessage(context.Background(), router.Message{ID: "m1", Body: notification(t, "vacation+photo.png")})
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedFileType)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, pub.msgs)
}

func TestProcessMessage_RedeliveryIsIdempotent(t *testing.T) {
	store := catalog.NewMemoryStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub)
	msg := router.Message{ID: "m1", Body: notification(t, "a.jpeg")}

	require.NoError(t, svc.ProcessMessage(context.Background(), msg))
	require.NoError(t, svc.ProcessMessage(context.Background(), msg))

	assert.Equal(t, 1, store.Len())
	require.Len(t, pub.msgs, 2)

	var second ImageRecordedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[1].value, &second))
	assert.False(t, second.Created)
}

func TestProcessMessage_SiblingRecordsAreIndependent(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := newTestService(failingStore{Store: store, failKey: "b.jpg"}, &fakePublisher{})

	err := svc.ProcessMessage(context.Background(), router.Message{ID: "m1", Body: notification(t, "a.jpg", "b.jpg", "c.gif", "d.jpeg")})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrStoreWrite)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedFileType)

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(context.Background(), "a.jpg")
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), "d.jpeg")
	assert.NoError(t, err)
}

func TestProcessMessage_Malformed(t *testing.T) {
	svc := newTestService(catalog.NewMemoryStore(), &fakePublisher{})
	err := svc.ProcessMessage(context.Background(), router.Message{ID: "m1", Body: []byte(`{"Message":"{}"}`)})
	assert.ErrorIs(t, err, pipeline.ErrMalformedEnvelope)
}

func TestProcessMessage_PublishFailureIsTransportError(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := newTestService(store, &fakePublisher{err: errors.New("broker down")})

	err := svc.ProcessMessage(context.Background(), router.Message{ID: "m1", Body: notification(t, "a.jpg")})
	assert.ErrorIs(t, err, pipeline.ErrTransport)
	assert.Equal(t, 1, store.Len())
}

func TestHandleBatch_ReportsOnlyFailedMessages(t *testing.T) {
	svc := newTestService(catalog.NewMemoryStore(), &fakePublisher{})

	res := svc.HandleBatch(context.Background(), []router.Message{
		{ID: "ok-1", Body: notification(t, "one.jpg")},
		{ID: "bad", Body: notification(t, "two.png")},
		{ID: "ok-2", Body: notification(t, "three.jpeg")},
	})

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].MessageID)
}

func TestHandleBatch_StampsOnlyFailedKeys(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := newTestService(failingStore{Store: store, failKey: "b.jpg"}, &fakePublisher{})

	res := svc.HandleBatch(context.Background(), []router.Message{
		{ID: "m1", Body: notification(t, "a.jpg", "b.jpg", "c.gif")},
	})

	require.Len(t, res.Failures, 1)
	keys, err := pipeline.DecodeFailedKeys(res.Failures[0].Attributes[pipeline.AttrFailedKeys])
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "b.jpg")
	assert.Contains(t, keys, "c.gif")
	assert.NotContains(t, keys, "a.jpg")
	assert.Contains(t, keys["b.jpg"], "connection reset")
}

func TestRecorder_EmptyKey(t *testing.T) {
	_, err := NewRecorder(catalog.NewMemoryStore(), zap.NewNop()).Record(context.Background(), pipeline.UploadEvent{Bucket: "images"})
	assert.ErrorIs(t, err, pipeline.ErrMissingKey)
}
