package scheduling

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

// StartResult carries the late arrival recorded when the tutor started
// past the grace period.
type StartResult struct {
	Session     *models.ClassSession `json:"session"`
	LateArrival *models.LateArrival  `json:"late_arrival,omitempty"`
}

// StartSession moves a scheduled session to in_progress. Starting more
// than 15 minutes early is refused; starting more than 5 minutes late
// records a LateArrival with the tiered penalty.
func (s *Service) StartSession(ctx context.Context, actor *models.User, id int64) (*StartResult, error) {
	var (
		res     StartResult
		tutor   *models.User
		finance []models.User
	)
	now := s.now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sess, t, err := s.loadForTutorAction(ctx, tx, actor, id, access.MarkAttendance)
		if err != nil {
			return err
		}
		tutor = t
		if !CanTransition(sess.Status, models.SessionInProgress) {
			return apperr.State("session", "cannot start session %d: it is %s", sess.ID, sess.Status)
		}
		if now.Before(sess.StartsAt.Add(-EarlyStartWindow)) {
			return apperr.State("session", "session %d cannot start before %s", sess.ID,
				sess.StartsAt.Add(-EarlyStartWindow).In(s.loc).Format("15:04"))
		}

		sess.Status = models.SessionInProgress
		sess.ActualStart = &now
		if now.After(sess.StartsAt.Add(LateGrace)) {
			minutes := LateMinutes(sess.StartsAt, now)
			rate := tutor.RateOr(s.defaultRate)
			la := &models.LateArrival{
				TutorID:       tutor.ID,
				SessionID:     sess.ID,
				ScheduledTime: sess.StartsAt,
				ActualArrival: now,
				LateMinutes:   minutes,
				HourlyRate:    rate,
				PenaltyAmount: LatePenalty(rate, minutes),
			}
			if err := tx.CreateLateArrival(ctx, la); err != nil {
				return err
			}
			sess.TutorLate = true
			sess.LateMinutes = minutes
			res.LateArrival = la

			finance, err = tx.ListUsers(ctx, models.UserFilter{Role: models.RoleFinanceCoordinator, ActiveOnly: true})
			if err != nil {
				return err
			}
		}
		res.Session = sess
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.log)
	metrics.SessionTransitions.WithLabelValues(string(models.SessionInProgress)).Inc()
	log.Info("session started", zap.Int64("session_id", id), zap.Bool("late", res.LateArrival != nil))
	if la := res.LateArrival; la != nil {
		metrics.LateArrivals.Inc()
		log.Warn("late arrival recorded", zap.Int64("session_id", id), zap.Int64("tutor_id", la.TutorID),
			zap.Int("late_minutes", la.LateMinutes), zap.Float64("penalty", la.PenaltyAmount))
		p := notify.Payload{
			"tutor":        tutor.FullName,
			"session_id":   strconv.FormatInt(id, 10),
			"late_minutes": strconv.Itoa(la.LateMinutes),
			"penalty":      fmt.Sprintf("%.2f", la.PenaltyAmount),
		}
		for _, u := range finance {
			notify.Send(ctx, s.notifier, log, u, notify.LateArrival, p)
		}
	}
	return &res, nil
}

// CompleteSession closes a scheduled or running session and counts it
// towards the tutor's total.
func (s *Service) CompleteSession(ctx context.Context, actor *models.User, id int64) (*models.ClassSession, error) {
	var sess *models.ClassSession
	now := s.now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var (
			tutor *models.User
			err   error
		)
		sess, tutor, err = s.loadForTutorAction(ctx, tx, actor, id, access.MarkAttendance)
		if err != nil {
			return err
		}
		if !CanTransition(sess.Status, models.SessionCompleted) {
			return apperr.State("session", "cannot complete session %d: it is %s", sess.ID, sess.Status)
		}
		if sess.ActualStart == nil {
			sess.ActualStart = &now
		}
		sess.ActualEnd = &now
		sess.Status = models.SessionCompleted
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		tutor.TotalClassesTaught++
		return tx.UpdateUser(ctx, tutor)
	})
	if err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionCompleted)).Inc()
	logging.FromContext(ctx, s.log).Info("session completed", zap.Int64("session_id", id))
	return sess, nil
}

// CancelSession cancels anything not yet completed or cancelled. The
// reason is appended to the session notes.
func (s *Service) CancelSession(ctx context.Context, actor *models.User, id int64, reason string) (*models.ClassSession, error) {
	reason = strings.TrimSpace(reason)
	var sess *models.ClassSession
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sess, _, err = s.loadForManager(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !CanTransition(sess.Status, models.SessionCancelled) {
			return apperr.State("session", "cannot cancel session %d: it is %s", sess.ID, sess.Status)
		}
		sess.Status = models.SessionCancelled
		note := "Cancelled"
		if reason != "" {
			note += ": " + reason
		}
		sess.Notes = s.appendNote(sess.Notes, note)
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionCancelled)).Inc()
	logging.FromContext(ctx, s.log).Info("session cancelled", zap.Int64("session_id", id), zap.String("reason", reason))
	return sess, nil
}

type RescheduleInput struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Start  string `json:"start" validate:"required,clock"`
	End    string `json:"end" validate:"required,clock"`
	Reason string `json:"reason" validate:"max=500"`
}

// RescheduleSession moves a scheduled session to a new slot. The session
// passes through rescheduled and is back to scheduled when the
// transaction commits; the move is kept in the notes.
func (s *Service) RescheduleSession(ctx context.Context, actor *models.User, id int64, in RescheduleInput) (*models.ClassSession, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	day, start, end, err := parseWindow(in.Date, in.Start, in.End, s.loc)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if !start.Before(end) {
		return nil, apperr.Invalid("end", "end time must be after start time")
	}

	var sess *models.ClassSession
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sess, _, err = s.loadForManager(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !CanTransition(sess.Status, models.SessionRescheduled) {
			return apperr.State("session", "cannot reschedule session %d: it is %s", sess.ID, sess.Status)
		}
		if err := s.checkAvailable(ctx, tx, sess.TutorID, start, end); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, tx, sess.TutorID, start, end, sess.ID); err != nil {
			return err
		}

		note := fmt.Sprintf("Rescheduled from %s to %s",
			sess.StartsAt.In(s.loc).Format("2006-01-02 15:04"), start.In(s.loc).Format("2006-01-02 15:04"))
		if r := strings.TrimSpace(in.Reason); r != "" {
			note += ": " + r
		}
		sess.Date, sess.StartsAt, sess.EndsAt = day, start, end
		sess.ComplianceDeadline = end.Add(models.ComplianceWindow)
		sess.ReminderSent = false
		sess.Notes = s.appendNote(sess.Notes, note)
		sess.Status = models.SessionScheduled
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(models.SessionRescheduled)).Inc()
	logging.FromContext(ctx, s.log).Info("session rescheduled", zap.Int64("session_id", id), zap.Time("starts_at", start))
	return sess, nil
}

// loadForTutorAction loads the session and its locked tutor, letting the
// tutor through with ownPerm and schedule managers of the department.
func (s *Service) loadForTutorAction(ctx context.Context, tx store.Tx, actor *models.User, id int64, ownPerm access.Permission) (*models.ClassSession, *models.User, error) {
	sess, err := tx.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tutor, err := tx.LockUser(ctx, sess.TutorID)
	if err != nil {
		return nil, nil, err
	}
	if err := access.AuthorizeOwner(actor, tutor.ID, ownPerm, access.ManageDepartmentSchedule, tutor.DepartmentID); err != nil {
		return nil, nil, err
	}
	return sess, tutor, nil
}

func (s *Service) loadForManager(ctx context.Context, tx store.Tx, actor *models.User, id int64) (*models.ClassSession, *models.User, error) {
	sess, err := tx.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tutor, err := tx.LockUser(ctx, sess.TutorID)
	if err != nil {
		return nil, nil, err
	}
	if err := access.Authorize(actor, access.ManageDepartmentSchedule, access.Scope(tutor.DepartmentID)); err != nil {
		return nil, nil, err
	}
	return sess, tutor, nil
}

func (s *Service) appendNote(notes, line string) string {
	line = fmt.Sprintf("[%s] %s", s.now().In(s.loc).Format("2006-01-02 15:04"), line)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
