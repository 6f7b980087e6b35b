package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
)

// Mailer is the part of *sendgrid.Client used here.
type Mailer interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

var _ Mailer = (*sendgrid.Client)(nil)

type Email struct {
	client Mailer
	from   *mail.Email
	app    string
}

// NewSendgrid builds an Email notifier backed by the SendGrid API.
func NewSendgrid(apiKey, from, app string) *Email {
	return NewEmail(sendgrid.NewSendClient(apiKey), from, app)
}

func NewEmail(client Mailer, from, app string) *Email {
	return &Email{client: client, from: mail.NewEmail(app, from), app: app}
}

func (e *Email) Notify(_ context.Context, u models.User, kind Kind, p Payload) error {
	if u.Email == "" {
		return ErrNoAddress
	}
	subject, body := Render(e.app, u, kind, p)
	to := mail.NewEmail(u.FullName, u.Email)
	msg := mail.NewSingleEmail(e.from, subject, to, body, "")

	resp, err := e.client.Send(msg)
	if err == nil && resp != nil && resp.StatusCode >= 300 {
		err = fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsSent.WithLabelValues("email", result).Inc()
	return err
}
