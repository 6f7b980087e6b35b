package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/Spok95/tutorcenter/internal/models"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

type fakeMailer struct {
	sent   []*mail.SGMailV3
	status int
}

func (f *fakeMailer) Send(m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	return &rest.Response{StatusCode: f.status}, nil
}

type recorder struct {
	kinds []Kind
	err   error
}

func (r *recorder) Notify(_ context.Context, _ models.User, k Kind, _ Payload) error {
	r.kinds = append(r.kinds, k)
	return r.err
}

func TestRender(t *testing.T) {
	u := models.User{Username: "ravi", FullName: "Ravi Kumar"}
	subject, body := Render("Tutor Center", u, PaymentReceived, Payload{
		"amount": "400.00", "fee_id": "7", "receipt": "RCP202401150001", "pending": "600.00",
	})
	if subject != "Payment received" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"Ravi Kumar", "400.00", "RCP202401150001", "600.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	subject, _ = Render("Tutor Center", u, Welcome, nil)
	if subject != "Welcome to Tutor Center" {
		t.Fatalf("welcome subject = %q", subject)
	}
}

func TestTelegram(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, "Tutor Center", []int64{1, 2})

	if err := tg.Notify(context.Background(), models.User{ID: 1}, Approval, nil); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("user without chat: got %v", err)
	}

	chat := int64(42)
	if err := tg.Notify(context.Background(), models.User{ID: 1, TelegramChatID: &chat}, Approval, nil); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 {
		t.Fatalf("sent = %+v", bot.sent)
	}

	if err := tg.Alert(context.Background(), "payroll done"); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 3 {
		t.Fatalf("alert fan-out: %d messages", len(bot.sent))
	}
}

func TestEmail(t *testing.T) {
	m := &fakeMailer{status: 202}
	e := NewEmail(m, "noreply@example.com", "Tutor Center")

	if err := e.Notify(context.Background(), models.User{}, Welcome, nil); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("no email: got %v", err)
	}
	if err := e.Notify(context.Background(), models.User{Email: "a@example.com"}, Welcome, nil); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 1 || m.sent[0].Subject != "Welcome to Tutor Center" {
		t.Fatalf("sent = %+v", m.sent)
	}

	m.status = 401
	if err := e.Notify(context.Background(), models.User{Email: "a@example.com"}, Welcome, nil); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a := &recorder{err: ErrNoAddress}
	b := &recorder{err: boom}
	c := &recorder{}

	err := Multi{a, nil, b, c}.Notify(context.Background(), models.User{}, LateArrival, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(a.kinds) != 1 || len(b.kinds) != 1 || len(c.kinds) != 1 {
		t.Fatal("every channel should be tried")
	}

	if err := (Multi{a, c}).Notify(context.Background(), models.User{}, LateArrival, nil); err != nil {
		t.Fatalf("missing address must not fail: %v", err)
	}
}

func TestNewSendgrid(t *testing.T) {
	var m Mailer = sendgrid.NewSendClient("SG.test")
	e := NewSendgrid("SG.test", "noreply@example.com", "Tutor Center")
	if m == nil || e.client == nil || e.from.Address != "noreply@example.com" {
		t.Fatalf("email notifier not wired: %+v", e)
	}
}
