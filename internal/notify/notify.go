// Package notify delivers user-facing notifications over Telegram, email
// and the process log. Callers send after their transaction commits; a
// failed notification never undoes domain state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
)

type Kind string

const (
	Welcome           Kind = "welcome"
	Approval          Kind = "approval"
	Rejection         Kind = "rejection"
	PasswordReset     Kind = "password_reset"
	LateArrival       Kind = "late_arrival"
	SessionReminder   Kind = "session_reminder"
	ComplianceOverdue Kind = "compliance_overdue"
	PaymentReceived   Kind = "payment_received"
	PayrollPaid       Kind = "payroll_paid"
	RegistrationQueue Kind = "registration_pending"
)

type Payload map[string]string

// Notifier sends one message of kind to u.
type Notifier interface {
	Notify(ctx context.Context, u models.User, kind Kind, p Payload) error
}

// ErrNoAddress means the channel has no way to reach the user; Multi treats
// it as a skip, not a failure.
var ErrNoAddress = errors.New("notify: user has no address on this channel")

var subjects = map[Kind]string{
	Welcome:           "Welcome to %s",
	Approval:          "Your %s account was approved",
	Rejection:         "Your %s registration",
	PasswordReset:     "%s password reset",
	LateArrival:       "Late arrival recorded",
	SessionReminder:   "Upcoming class",
	ComplianceOverdue: "Class paperwork overdue",
	PaymentReceived:   "Payment received",
	PayrollPaid:       "Payroll paid",
	RegistrationQueue: "New registration waiting for approval",
}

// Render turns kind and payload into a subject line and a plain-text body.
func Render(app string, u models.User, kind Kind, p Payload) (subject, body string) {
	subject = string(kind)
	if f, ok := subjects[kind]; ok {
		if strings.Contains(f, "%s") {
			subject = fmt.Sprintf(f, app)
		} else {
			subject = f
		}
	}

	name := u.FullName
	if name == "" {
		name = u.Username
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	switch kind {
	case Welcome:
		fmt.Fprintf(&b, "Your account %q was created. You can sign in once an administrator approves it.\n", u.Username)
	case Approval:
		b.WriteString("Your account has been approved. You can sign in now.\n")
	case Rejection:
		b.WriteString("Your registration was not approved.\n")
		if r := p["reason"]; r != "" {
			fmt.Fprintf(&b, "Reason: %s\n", r)
		}
	case PasswordReset:
		fmt.Fprintf(&b, "Use this token to reset your password: %s\nIt expires at %s.\n", p["token"], p["expires_at"])
	case LateArrival:
		fmt.Fprintf(&b, "Tutor %s started session #%s %s minutes late. Penalty: %s.\n",
			p["tutor"], p["session_id"], p["late_minutes"], p["penalty"])
	case SessionReminder:
		fmt.Fprintf(&b, "Reminder: %s on %s (session #%s).\n", p["subject"], p["starts_at"], p["session_id"])
		if l := p["meeting_link"]; l != "" {
			fmt.Fprintf(&b, "Link: %s\n", l)
		}
	case ComplianceOverdue:
		fmt.Fprintf(&b, "Session #%s (%s) is past its compliance deadline %s. Missing: %s.\n",
			p["session_id"], p["subject"], p["deadline"], p["missing"])
	case PaymentReceived:
		fmt.Fprintf(&b, "Payment of %s received for fee #%s. Receipt %s. Pending: %s.\n",
			p["amount"], p["fee_id"], p["receipt"], p["pending"])
	case PayrollPaid:
		fmt.Fprintf(&b, "Your payroll for %s was paid: %s.\n", p["period"], p["net"])
	case RegistrationQueue:
		fmt.Fprintf(&b, "%s registered as %s and is waiting for approval.\n", p["username"], p["role"])
	default:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, p[k])
		}
	}
	return subject, b.String()
}

// Log writes every notification to the process log. It is always wired so
// messages are visible even without external channels.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Notify(_ context.Context, u models.User, kind Kind, p Payload) error {
	fields := []zap.Field{zap.Int64("user_id", u.ID), zap.String("kind", string(kind))}
	for k, v := range p {
		if k == "token" {
			v = "***"
		}
		fields = append(fields, zap.String(k, v))
	}
	l.log.Info("notification", fields...)
	metrics.NotificationsSent.WithLabelValues("log", "ok").Inc()
	return nil
}

// Multi fans a notification out to every channel and returns the first
// real error after trying them all.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, u models.User, kind Kind, p Payload) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, u, kind, p); err != nil && !errors.Is(err, ErrNoAddress) && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, models.User, Kind, Payload) error { return nil }

// Send delivers and logs a failure instead of returning it. Services call
// it after commit.
func Send(ctx context.Context, n Notifier, log *zap.Logger, u models.User, kind Kind, p Payload) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, u, kind, p); err != nil && log != nil {
		log.Warn("notification failed", zap.Int64("user_id", u.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}
