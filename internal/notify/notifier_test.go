package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/pkg/mailer"
)

type fakeMailer struct {
	sent []mailer.Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e mailer.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func newTestNotifier(m Mailer) *Notifier {
	return NewNotifier(Params{
		Mailer: m,
		From:   "noreply@example.com",
		To:     "uploads@example.com",
		Logger: zap.NewNop(),
	})
}

func TestNotify_Accepted(t *testing.T) {
	m := &fakeMailer{}
	n := newTestNotifier(m)

	require.NoError(t, n.Notify(context.Background(), pipeline.Accepted("sunset.JPG")))

	require.Len(t, m.sent, 1)
	email := m.sent[0]
	assert.Equal(t, "noreply@example.com", email.From)
	assert.Equal(t, "uploads@example.com", email.To)
	assert.Equal(t, SubjectAccepted, email.Subject)
	assert.Contains(t, email.HTML, "Your image with ID: sunset.JPG has been successfully uploaded.")
	assert.Contains(t, email.HTML, "noreply@example.com")
}

func TestNotify_Rejected(t *testing.T) {
	m := &fakeMailer{}
	n := newTestNotifier(m)

	require.NoError(t, n.Notify(context.Background(), pipeline.Rejected("vacation photo.png", "Unsupported file type: .png")))

	require.Len(t, m.sent, 1)
	assert.Equal(t, SubjectRejected, m.sent[0].Subject)
	assert.Contains(t, m.sent[0].HTML, "vacation photo.png")
	assert.Contains(t, m.sent[0].HTML, "Unsupported file type: .png")
}

func TestNotify_EscapesKey(t *testing.T) {
	m := &fakeMailer{}
	n := newTestNotifier(m)

	require.NoError(t, n.Notify(context.Background(), pipeline.Accepted("<b>x</b>.jpg")))

	require.Len(t, m.sent, 1)
	assert.NotContains(t, m.sent[0].HTML, "<b>x</b>")
	assert.Contains(t, m.sent[0].HTML, "&lt;b&gt;x&lt;/b&gt;.jpg")
}

func TestNotify_SendFailure(t *testing.T) {
	n := newTestNotifier(&fakeMailer{err: errors.New("relay unavailable")})

	err := n.Notify(context.Background(), pipeline.Accepted("sunset.JPG"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrTransport)
}

func TestCompose_UnknownStatus(t *testing.T) {
	n := newTestNotifier(&fakeMailer{})

	_, err := n.Compose(pipeline.Outcome{Status: "pending", ID: "a.jpg"})
	assert.Error(t, err)
}
