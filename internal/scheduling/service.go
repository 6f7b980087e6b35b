// Package scheduling turns enrollments into dated class sessions, keeps a
// tutor from being double-booked and drives the session state machine.
package scheduling

import (
	"context"
	"time"

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

type Options struct {
	Location          *time.Location
	DefaultHourlyRate float64
	Now               func() time.Time
	Logger            *zap.Logger
	Notifier          notify.Notifier
}

type Service struct {
	store       store.Store
	loc         *time.Location
	defaultRate float64
	now         func() time.Time
	log         *zap.Logger
	notifier    notify.Notifier
}

func New(st store.Store, o Options) *Service {
	s := &Service{
		store:       st,
		loc:         o.Location,
		defaultRate: o.DefaultHourlyRate,
		now:         o.Now,
		log:         logging.Named(o.Logger, "scheduling"),
		notifier:    o.Notifier,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.defaultRate <= 0 {
		s.defaultRate = 500
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	return s
}

type CreateSessionInput struct {
	EnrollmentID *int64 `json:"enrollment_id"`
	TutorID      int64  `json:"tutor_id" validate:"required"`
	StudentID    *int64 `json:"student_id"`
	Subject      string `json:"subject" validate:"required,max=100"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Start        string `json:"start" validate:"required,clock"`
	End          string `json:"end" validate:"required,clock"`
	MeetingLink  string `json:"meeting_link" validate:"omitempty,url,max=500"`
	Notes        string `json:"notes" validate:"max=2000"`
}

// CreateSession books one session after checking the window is within the
// tutor's availability and clear of their other live sessions.
func (s *Service) CreateSession(ctx context.Context, actor *models.User, in CreateSessionInput) (*models.ClassSession, error) {
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

	sess := &models.ClassSession{
		EnrollmentID:       in.EnrollmentID,
		TutorID:            in.TutorID,
		StudentID:          in.StudentID,
		Subject:            in.Subject,
		Date:               day,
		StartsAt:           start,
		EndsAt:             end,
		Status:             models.SessionScheduled,
		MeetingLink:        in.MeetingLink,
		Notes:              in.Notes,
		ComplianceDeadline: end.Add(models.ComplianceWindow),
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		tutor, err := lockTutor(ctx, tx, in.TutorID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageDepartmentSchedule, access.Scope(tutor.DepartmentID)); err != nil {
			return err
		}
		if !tutor.IsActive {
			return apperr.Invalid("tutor_id", "tutor %d is not active", tutor.ID)
		}
		if in.EnrollmentID != nil {
			e, err := tx.GetEnrollment(ctx, *in.EnrollmentID)
			if err != nil {
				return err
			}
			if e.TutorID != tutor.ID {
				return apperr.Invalid("enrollment_id", "enrollment %d belongs to another tutor", e.ID)
			}
			if sess.StudentID == nil {
				sess.StudentID = &e.StudentID
			}
		}
		if sess.StudentID != nil {
			if _, err := tx.GetStudent(ctx, *sess.StudentID); err != nil {
				return err
			}
		}
		if err := s.checkAvailable(ctx, tx, tutor.ID, start, end); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, tx, tutor.ID, start, end, 0); err != nil {
			return err
		}
		return tx.CreateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsCreated.WithLabelValues("manual").Inc()
	logging.FromContext(ctx, s.log).Info("session created",
		zap.Int64("session_id", sess.ID), zap.Int64("tutor_id", sess.TutorID),
		zap.Time("starts_at", sess.StartsAt))
	return sess, nil
}

type UpdateSessionInput struct {
	Subject     *string `json:"subject" validate:"omitempty,max=100"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
	MeetingLink *string `json:"meeting_link" validate:"omitempty,max=500"`
	Date        *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Start       *string `json:"start" validate:"omitempty,clock"`
	End         *string `json:"end" validate:"omitempty,clock"`
}

// moves reports whether the input changes the time window; date, start
// and end must then all be given.
func (in UpdateSessionInput) moves() (bool, error) {
	n := 0
	for _, p := range []*string{in.Date, in.Start, in.End} {
		if p != nil {
			n++
		}
	}
	switch n {
	case 0:
		return false, nil
	case 3:
		return true, nil
	}
	return false, apperr.Invalid("date", "date, start and end must be changed together")
}

// UpdateSession edits descriptive fields; moving the time window is only
// allowed while the session is scheduled and re-runs conflict detection.
func (s *Service) UpdateSession(ctx context.Context, actor *models.User, id int64, in UpdateSessionInput) (*models.ClassSession, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	move, err := in.moves()
	if err != nil {
		return nil, err
	}
	var sess *models.ClassSession
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sess, err = tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		tutor, err := lockTutor(ctx, tx, sess.TutorID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageDepartmentSchedule, access.Scope(tutor.DepartmentID)); err != nil {
			return err
		}
		if sess.Status == models.SessionCompleted || sess.Status == models.SessionCancelled {
			return apperr.State("session", "session %d is %s", sess.ID, sess.Status)
		}
		if in.Subject != nil {
			sess.Subject = *in.Subject
		}
		if in.Notes != nil {
			sess.Notes = *in.Notes
		}
		if in.MeetingLink != nil {
			sess.MeetingLink = *in.MeetingLink
		}
		if move {
			if sess.Status != models.SessionScheduled {
				return apperr.State("session", "cannot move session %d while %s", sess.ID, sess.Status)
			}
			day, start, end, err := parseWindow(*in.Date, *in.Start, *in.End, s.loc)
			if err != nil {
				return apperr.Validation(err.Error())
			}
			if !start.Before(end) {
				return apperr.Invalid("end", "end time must be after start time")
			}
			if err := s.checkConflict(ctx, tx, sess.TutorID, start, end, sess.ID); err != nil {
				return err
			}
			sess.Date, sess.StartsAt, sess.EndsAt = day, start, end
			sess.ComplianceDeadline = end.Add(models.ComplianceWindow)
		}
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("session updated", zap.Int64("session_id", sess.ID))
	return sess, nil
}

// GetSession returns one session to its tutor or to a viewer of the
// tutor's department.
func (s *Service) GetSession(ctx context.Context, actor *models.User, id int64) (*models.ClassSession, error) {
	return store.Read(ctx, s.store, func(tx store.Tx) (*models.ClassSession, error) {
		sess, err := tx.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		tutor, err := tx.GetUser(ctx, sess.TutorID)
		if err != nil {
			return nil, err
		}
		if err := access.AuthorizeOwner(actor, tutor.ID, access.ViewOwnClasses,
			access.ViewDepartmentClasses, tutor.DepartmentID); err != nil {
			if access.Authorize(actor, access.ViewAllDepartments, nil) != nil {
				return nil, err
			}
		}
		return sess, nil
	})
}

// ListSessions applies f within what actor may see: every department for
// staff-wide viewers, their own department for coordinators and their own
// sessions for tutors.
func (s *Service) ListSessions(ctx context.Context, actor *models.User, f models.SessionFilter) ([]models.ClassSession, error) {
	f, err := ScopeSessions(actor, f)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.ClassSession, error) {
		return tx.ListSessions(ctx, f)
	})
}

// ScopeSessions narrows f to the sessions actor is allowed to see.
func ScopeSessions(actor *models.User, f models.SessionFilter) (models.SessionFilter, error) {
	switch {
	case access.IsStaffWide(actor) &&
		access.AuthorizeAny(actor, nil, access.ViewDepartmentClasses, access.ViewAllDepartments, access.ViewAllReports) == nil:
		return f, nil
	case access.Allowed(actor, access.ViewDepartmentClasses):
		if actor.DepartmentID == nil {
			return f, apperr.Forbidden("%s has no department", actor.Username)
		}
		if f.DepartmentID != nil && *f.DepartmentID != *actor.DepartmentID {
			return f, apperr.Forbidden("%s cannot access department %d", actor.Username, *f.DepartmentID)
		}
		f.DepartmentID = actor.DepartmentID
		return f, nil
	case access.Allowed(actor, access.ViewOwnClasses):
		if f.TutorID != nil && *f.TutorID != actor.ID {
			return f, apperr.Forbidden("%s can only see own sessions", actor.Username)
		}
		id := actor.ID
		f.TutorID = &id
		return f, nil
	}
	return f, access.Authorize(actor, access.ViewOwnClasses, nil)
}

// lockTutor loads and row-locks the tutor so concurrent bookings for the
// same tutor serialize on the conflict check.
func lockTutor(ctx context.Context, tx store.Tx, id int64) (*models.User, error) {
	u, err := tx.LockUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleTutor {
		return nil, apperr.Invalid("tutor_id", "user %d is not a tutor", id)
	}
	return u, nil
}

// tutorSessions loads the tutor's live sessions that could overlap [from, to).
func tutorSessions(ctx context.Context, tx store.Tx, tutorID int64, from, to time.Time) ([]models.ClassSession, error) {
	lo := from.Add(-24 * time.Hour)
	return tx.ListSessions(ctx, models.SessionFilter{
		TutorID:  &tutorID,
		From:     &lo,
		To:       &to,
		Statuses: models.LiveStatuses,
	})
}

func (s *Service) checkConflict(ctx context.Context, tx store.Tx, tutorID int64, start, end time.Time, exclude int64) error {
	existing, err := tutorSessions(ctx, tx, tutorID, start, end)
	if err != nil {
		return err
	}
	if c := FindConflict(existing, start, end, exclude); c != nil {
		metrics.ConflictsRejected.Inc()
		return s.conflictErr(c)
	}
	return nil
}

// ConflictWindow is the clashing session's time range, reported with conflicts.
type ConflictWindow struct {
	SessionID int64     `json:"session_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

func (s *Service) conflictErr(c *models.ClassSession) error {
	return apperr.Conflict("session", ConflictWindow{SessionID: c.ID, StartsAt: c.StartsAt, EndsAt: c.EndsAt},
		"tutor already has session %d from %s to %s", c.ID,
		c.StartsAt.In(s.loc).Format("2006-01-02 15:04"), c.EndsAt.In(s.loc).Format("15:04"))
}
