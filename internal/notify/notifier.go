// Package notify tells the uploader whether an image was accepted or rejected.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/pkg/mailer"
)

const (
	SubjectAccepted = "New image Upload"
	SubjectRejected = "Image Upload Rejected"

	senderNameAccepted = "Image Upload Confirmation"
	senderNameRejected = "Image Upload Rejection"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<html>
  <body>
    <h2>Sent from: </h2>
    <ul>
      <li style="font-size:18px">👤 <b>{{.Name}}</b></li>
      <li style="font-size:18px">✉️ <b>{{.Email}}</b></li>
    </ul>
    <p style="font-size:18px">{{.Message}}</p>
  </body>
</html>
`))

type bodyData struct {
	Name    string
	Email   string
	Message string
}

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, e mailer.Email) error
}

// Notifier renders outcomes and sends them to the fixed recipient.
type Notifier struct {
	mailer Mailer
	from   string
	to     string
	logger *zap.Logger
}

type Params struct {
	Mailer Mailer
	From   string
	To     string
	Logger *zap.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(p Params) *Notifier {
	return &Notifier{
		mailer: p.Mailer,
		from:   p.From,
		to:     p.To,
		logger: p.Logger,
	}
}

// Notify sends exactly one email for outcome and returns the transport error,
// if any, so the caller can retry.
func (n *Notifier) Notify(ctx context.Context, outcome pipeline.Outcome) error {
	email, err := n.Compose(outcome)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("notify %s %q: %w", outcome.Status, outcome.ID, errors.Join(pipeline.ErrTransport, err))
	}
	n.logger.Info("notification sent",
		zap.String("id", outcome.ID),
		zap.String("status", string(outcome.Status)),
	)
	return nil
}

// Compose renders the email for outcome without sending it.
func (n *Notifier) Compose(outcome pipeline.Outcome) (mailer.Email, error) {
	var (
		subject string
		data    = bodyData{Email: n.from}
	)
	switch outcome.Status {
	case pipeline.StatusAccepted:
		subject = SubjectAccepted
		data.Name = senderNameAccepted
		data.Message = fmt.Sprintf("Your image with ID: %s has been successfully uploaded.", outcome.ID)
	case pipeline.StatusRejected:
		subject = SubjectRejected
		data.Name = senderNameRejected
		data.Message = fmt.Sprintf("Your image with ID: %s was rejected. Reason: %s", outcome.ID, outcome.Reason)
	default:
		return mailer.Email{}, fmt.Errorf("notify: unknown outcome status %q", outcome.Status)
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return mailer.Email{}, fmt.Errorf("render notification: %w", err)
	}
	return mailer.Email{
		From:    n.from,
		To:      n.to,
		Subject: subject,
		HTML:    body.String(),
	}, nil
}
