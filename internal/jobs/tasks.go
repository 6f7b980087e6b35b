package jobs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
)

// DefaultReminderLead is how far ahead class reminders go out.
const DefaultReminderLead = 24 * time.Hour

// Tasks holds the periodic jobs. Each one follows the same three steps:
// pick candidates, notify, then mark them so a rerun skips them.
type Tasks struct {
	Store        store.Store
	Tokens       store.TokenStore
	Notifier     notify.Notifier
	Alerter      Alerter
	Finance      *finance.Service
	Location     *time.Location
	Now          func() time.Time
	Logger       *zap.Logger
	ReminderLead time.Duration
}

// Alerter pushes operator-facing messages, such as the admin Telegram chats.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

func (t *Tasks) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tasks) loc() *time.Location {
	if t.Location != nil {
		return t.Location
	}
	return time.Local
}

func (t *Tasks) notifier() notify.Notifier {
	if t.Notifier != nil {
		return t.Notifier
	}
	return notify.Nop{}
}

func (t *Tasks) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, logging.Named(t.Logger, "jobs"))
}

// SessionReminders tells tutors about scheduled classes starting within
// the reminder lead. Each session is reminded once.
func (t *Tasks) SessionReminders(ctx context.Context) error {
	now := t.now()
	lead := t.ReminderLead
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	to := now.Add(lead)

	type due struct {
		sess  models.ClassSession
		tutor models.User
	}
	var list []due
	err := t.Store.InTx(ctx, func(tx store.Tx) error {
		sessions, err := tx.ListSessions(ctx, models.SessionFilter{
			From: &now, To: &to, Statuses: []models.SessionStatus{models.SessionScheduled},
		})
		if err != nil {
			return err
		}
		tutors := map[int64]*models.User{}
		for _, s := range sessions {
			if s.ReminderSent {
				continue
			}
			u, ok := tutors[s.TutorID]
			if !ok {
				if u, err = tx.GetUser(ctx, s.TutorID); err != nil {
					return err
				}
				tutors[s.TutorID] = u
			}
			if !u.IsActive {
				continue
			}
			list = append(list, due{sess: s, tutor: *u})
		}
		return nil
	})
	if err != nil || len(list) == 0 {
		return err
	}

	ids := make([]int64, 0, len(list))
	for _, d := range list {
		notify.Send(ctx, t.notifier(), t.Logger, d.tutor, notify.SessionReminder, notify.Payload{
			"session_id":   strconv.FormatInt(d.sess.ID, 10),
			"subject":      d.sess.Subject,
			"starts_at":    d.sess.StartsAt.In(t.loc()).Format("Mon 02 Jan 15:04"),
			"meeting_link": d.sess.MeetingLink,
		})
		ids = append(ids, d.sess.ID)
	}
	if err := t.Store.InTx(ctx, func(tx store.Tx) error { return tx.MarkReminded(ctx, ids) }); err != nil {
		return err
	}
	jobItems.WithLabelValues("session_reminders").Add(float64(len(ids)))
	t.log(ctx).Info("session reminders sent", zap.Int("count", len(ids)))
	return nil
}

// ComplianceAlerts notifies tutors once per completed session whose
// checklist deadline has passed with items missing.
func (t *Tasks) ComplianceAlerts(ctx context.Context) error {
	now := t.now()
	type due struct {
		sess  models.ClassSession
		tutor models.User
	}
	var list []due
	err := t.Store.InTx(ctx, func(tx store.Tx) error {
		sessions, err := tx.ListSessions(ctx, models.SessionFilter{
			Statuses: []models.SessionStatus{models.SessionCompleted},
		})
		if err != nil {
			return err
		}
		for _, s := range attendance.Overdue(sessions, now) {
			if s.ComplianceAlerted {
				continue
			}
			u, err := tx.GetUser(ctx, s.TutorID)
			if err != nil {
				return err
			}
			list = append(list, due{sess: s, tutor: *u})
		}
		return nil
	})
	if err != nil || len(list) == 0 {
		return err
	}

	ids := make([]int64, 0, len(list))
	for _, d := range list {
		notify.Send(ctx, t.notifier(), t.Logger, d.tutor, notify.ComplianceOverdue, notify.Payload{
			"session_id": strconv.FormatInt(d.sess.ID, 10),
			"subject":    d.sess.Subject,
			"deadline":   d.sess.ComplianceDeadline.In(t.loc()).Format("2006-01-02 15:04"),
			"missing":    strings.Join(d.sess.ComplianceChecklist().Missing(), ", "),
		})
		ids = append(ids, d.sess.ID)
	}
	if err := t.Store.InTx(ctx, func(tx store.Tx) error { return tx.MarkComplianceAlerted(ctx, ids) }); err != nil {
		return err
	}
	jobItems.WithLabelValues("compliance_alerts").Add(float64(len(ids)))
	t.log(ctx).Info("compliance alerts sent", zap.Int("count", len(ids)))
	return nil
}

// PurgeTokens drops expired password reset tokens.
func (t *Tasks) PurgeTokens(ctx context.Context) error {
	if t.Tokens == nil {
		return nil
	}
	n, err := t.Tokens.PurgeExpiredTokens(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		jobItems.WithLabelValues("purge_tokens").Add(float64(n))
		t.log(ctx).Info("expired reset tokens purged", zap.Int64("count", n))
	}
	return nil
}

func (t *Tasks) alert(ctx context.Context, text string) {
	if t.Alerter == nil {
		return
	}
	if err := t.Alerter.Alert(ctx, text); err != nil {
		t.log(ctx).Warn("admin alert failed", zap.Error(err))
	}
}
