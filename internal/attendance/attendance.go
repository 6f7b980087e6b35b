// Package attendance records who attended a session and tracks the
// post-class checklist: attendance, feedback, recording and materials.
package attendance

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/files"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type Options struct {
	Files  files.Store
	Now    func() time.Time
	Logger *zap.Logger
}

type Service struct {
	store store.Store
	files files.Store
	now   func() time.Time
	log   *zap.Logger
}

func New(st store.Store, o Options) *Service {
	s := &Service{store: st, files: o.Files, now: o.Now, log: logging.Named(o.Logger, "attendance")}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type MarkAttendanceInput struct {
	SessionID   int64      `json:"session_id" validate:"required"`
	StudentID   int64      `json:"student_id" validate:"required"`
	Status      string     `json:"status" validate:"required,oneof=present absent late excused"`
	Reason      string     `json:"reason" validate:"max=500"`
	Arrival     *time.Time `json:"arrival_time"`
	Departure   *time.Time `json:"departure_time"`
	LateMinutes int        `json:"late_minutes" validate:"min=0"`
}

// MarkAttendance writes the one attendance record for (session, student)
// and ticks the session's attendance item.
func (s *Service) MarkAttendance(ctx context.Context, actor *models.User, in MarkAttendanceInput) (*models.Attendance, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	status := models.AttendanceStatus(in.Status)
	if status == models.AttendanceAbsent && strings.TrimSpace(in.Reason) == "" {
		return nil, apperr.Invalid("reason", "reason is required when the student is absent")
	}
	if in.Arrival != nil && in.Departure != nil && in.Departure.Before(*in.Arrival) {
		return nil, apperr.Invalid("departure_time", "departure must not be before arrival")
	}

	now := s.now()
	a := &models.Attendance{
		SessionID:     in.SessionID,
		StudentID:     in.StudentID,
		Status:        status,
		Reason:        strings.TrimSpace(in.Reason),
		ArrivalTime:   in.Arrival,
		DepartureTime: in.Departure,
		LateMinutes:   in.LateMinutes,
		MarkedBy:      actor.ID,
		MarkedAt:      now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := loadForTutor(ctx, tx, actor, in.SessionID, access.MarkAttendance)
		if err != nil {
			return err
		}
		if sess.Status == models.SessionCancelled {
			return apperr.State("session", "session %d is cancelled", sess.ID)
		}
		if _, err := tx.GetStudent(ctx, in.StudentID); err != nil {
			return err
		}
		if err := tx.UpsertAttendance(ctx, a); err != nil {
			return err
		}
		if !sess.AttendanceMarked {
			sess.AttendanceMarked = true
			sess.AttendanceMarkedAt = &now
			return tx.UpdateSession(ctx, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ComplianceItems.WithLabelValues("attendance").Inc()
	logging.FromContext(ctx, s.log).Info("attendance marked",
		zap.Int64("session_id", in.SessionID), zap.Int64("student_id", in.StudentID), zap.String("status", in.Status))
	return a, nil
}

// ListAttendance returns the records of one session.
func (s *Service) ListAttendance(ctx context.Context, actor *models.User, sessionID int64) ([]models.Attendance, error) {
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.Attendance, error) {
		if _, err := loadForViewer(ctx, tx, actor, sessionID); err != nil {
			return nil, err
		}
		return tx.ListAttendance(ctx, sessionID)
	})
}

type FeedbackInput struct {
	SessionID int64  `json:"session_id" validate:"required"`
	Feedback  string `json:"feedback" validate:"required,max=5000"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
}

// SubmitFeedback stores the tutor's post-class feedback once and folds the
// rating into the tutor's running average.
func (s *Service) SubmitFeedback(ctx context.Context, actor *models.User, in FeedbackInput) (*models.ClassSession, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now()
	var sess *models.ClassSession
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sess, err = loadForTutor(ctx, tx, actor, in.SessionID, access.SubmitFeedback)
		if err != nil {
			return err
		}
		if err := requireCompleted(sess); err != nil {
			return err
		}
		if sess.FeedbackSubmitted {
			return apperr.State("session", "feedback for session %d was already submitted", sess.ID)
		}
		tutor, err := tx.LockUser(ctx, sess.TutorID)
		if err != nil {
			return err
		}
		rating := in.Rating
		sess.Feedback = strings.TrimSpace(in.Feedback)
		sess.Rating = &rating
		sess.FeedbackSubmitted = true
		sess.FeedbackSubmittedAt = &now
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		tutor.AddRating(float64(rating))
		return tx.UpdateUser(ctx, tutor)
	})
	if err != nil {
		return nil, err
	}
	metrics.ComplianceItems.WithLabelValues("feedback").Inc()
	logging.FromContext(ctx, s.log).Info("feedback submitted", zap.Int64("session_id", in.SessionID), zap.Int("rating", in.Rating))
	return sess, nil
}

// Upload is one file handed in with a session.
type Upload struct {
	Name string
	Body io.Reader
}

// UploadRecording saves the class recording and ticks the recording item.
// Uploading again replaces the stored path.
func (s *Service) UploadRecording(ctx context.Context, actor *models.User, sessionID int64, name string, r io.Reader) (*models.ClassSession, error) {
	if err := s.checkUpload(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	path, err := s.save(ctx, sessionID, "recording", Upload{Name: name, Body: r})
	if err != nil {
		return nil, err
	}
	sess, err := s.afterUpload(ctx, actor, sessionID, func(sess *models.ClassSession, now time.Time) {
		sess.RecordingPath = path
		sess.RecordingUploaded = true
		sess.RecordingUploadedAt = &now
	})
	if err != nil {
		s.discard(ctx, path)
		return nil, err
	}
	metrics.ComplianceItems.WithLabelValues("recording").Inc()
	logging.FromContext(ctx, s.log).Info("recording uploaded", zap.Int64("session_id", sessionID), zap.String("path", path))
	return sess, nil
}

// UploadMaterials saves class materials and ticks the materials item.
// Paths accumulate across uploads.
func (s *Service) UploadMaterials(ctx context.Context, actor *models.User, sessionID int64, uploads []Upload) (*models.ClassSession, error) {
	if len(uploads) == 0 {
		return nil, apperr.Invalid("files", "at least one file is required")
	}
	if err := s.checkUpload(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(uploads))
	for _, u := range uploads {
		p, err := s.save(ctx, sessionID, "materials", u)
		if err != nil {
			s.discard(ctx, paths...)
			return nil, err
		}
		paths = append(paths, p)
	}
	sess, err := s.afterUpload(ctx, actor, sessionID, func(sess *models.ClassSession, now time.Time) {
		sess.MaterialPaths = append(sess.MaterialPaths, paths...)
		sess.MaterialsUploaded = true
		sess.MaterialsUploadedAt = &now
	})
	if err != nil {
		s.discard(ctx, paths...)
		return nil, err
	}
	metrics.ComplianceItems.WithLabelValues("materials").Inc()
	logging.FromContext(ctx, s.log).Info("materials uploaded", zap.Int64("session_id", sessionID), zap.Int("files", len(paths)))
	return sess, nil
}

// checkUpload runs the authorization and state checks before any file is
// written; afterUpload repeats them in the transaction that records it.
func (s *Service) checkUpload(ctx context.Context, actor *models.User, sessionID int64) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := loadForTutor(ctx, tx, actor, sessionID, access.UploadRecordings)
		if err != nil {
			return err
		}
		return requireCompleted(sess)
	})
}

func (s *Service) afterUpload(ctx context.Context, actor *models.User, sessionID int64, apply func(*models.ClassSession, time.Time)) (*models.ClassSession, error) {
	var sess *models.ClassSession
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sess, err = loadForTutor(ctx, tx, actor, sessionID, access.UploadRecordings)
		if err != nil {
			return err
		}
		if err := requireCompleted(sess); err != nil {
			return err
		}
		apply(sess, s.now())
		return tx.UpdateSession(ctx, sess)
	})
	return sess, err
}

func (s *Service) save(ctx context.Context, sessionID int64, kind string, u Upload) (string, error) {
	if s.files == nil {
		return "", fmt.Errorf("attendance: no file store configured")
	}
	if u.Body == nil {
		return "", apperr.Invalid("file", "file %q is empty", u.Name)
	}
	return s.files.Save(ctx, fmt.Sprintf("sessions/%d/%s", sessionID, kind), u.Name, u.Body)
}

// discard removes files saved for an upload that was not recorded.
func (s *Service) discard(ctx context.Context, paths ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if err := s.files.Remove(ctx, p); err != nil {
			logging.FromContext(ctx, s.log).Warn("orphaned upload not removed", zap.String("path", p), zap.Error(err))
		}
	}
}

func requireCompleted(sess *models.ClassSession) error {
	if sess.Status != models.SessionCompleted {
		return apperr.State("session", "session %d is %s, not completed", sess.ID, sess.Status)
	}
	return nil
}

// loadForTutor lets the session's tutor through with ownPerm and schedule
// managers of the tutor's department.
func loadForTutor(ctx context.Context, tx store.Tx, actor *models.User, id int64, ownPerm access.Permission) (*models.ClassSession, error) {
	sess, err := tx.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	tutor, err := tx.GetUser(ctx, sess.TutorID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeOwner(actor, tutor.ID, ownPerm, access.ManageDepartmentSchedule, tutor.DepartmentID); err != nil {
		return nil, err
	}
	return sess, nil
}

func loadForViewer(ctx context.Context, tx store.Tx, actor *models.User, id int64) (*models.ClassSession, error) {
	sess, err := tx.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	tutor, err := tx.GetUser(ctx, sess.TutorID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeOwner(actor, tutor.ID, access.ViewOwnClasses, access.ViewDepartmentClasses, tutor.DepartmentID); err != nil {
		if access.Authorize(actor, access.ViewAllDepartments, nil) != nil {
			return nil, err
		}
	}
	return sess, nil
}
