package attendance

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/files"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/store/memstore"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fixture struct {
	svc     *Service
	st      *memstore.Store
	now     time.Time
	admin   *models.User
	tutor   *models.User
	student *models.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memstore.New(), now: time.Date(2024, 1, 1, 16, 0, 0, 0, ist)}
	err := f.st.InTx(ctx, func(tx store.Tx) error {
		d := &models.Department{Name: "Science", Code: "SCI", IsActive: true}
		if err := tx.CreateDepartment(ctx, d); err != nil {
			return err
		}
		f.admin = &models.User{Username: "root", Role: models.RoleSuperadmin, IsActive: true, IsApproved: true}
		f.tutor = &models.User{Username: "tutor", Role: models.RoleTutor, DepartmentID: &d.ID, IsActive: true, IsApproved: true}
		for _, u := range []*models.User{f.admin, f.tutor} {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		f.student = &models.Student{StudentID: "STU2400001", FullName: "Arjun", DepartmentID: &d.ID, Status: models.StudentActive}
		return tx.CreateStudent(ctx, f.student)
	})
	if err != nil {
		t.Fatal(err)
	}
	f.svc = New(f.st, Options{
		Files: files.NewLocal(t.TempDir(), 0),
		Now:   func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) session(t *testing.T, day int, status models.SessionStatus) *models.ClassSession {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 1, day, 14, 0, 0, 0, ist)
	s := &models.ClassSession{
		TutorID:            f.tutor.ID,
		StudentID:          &f.student.ID,
		Subject:            "Physics",
		Date:               time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		StartsAt:           start,
		EndsAt:             start.Add(time.Hour),
		Status:             status,
		ComplianceDeadline: start.Add(25 * time.Hour),
	}
	if err := f.st.InTx(ctx, func(tx store.Tx) error { return tx.CreateSession(ctx, s) }); err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) completeChecklist(t *testing.T, id int64, withRecording bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: id, StudentID: f.student.ID, Status: "present"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: id, Feedback: "Covered kinematics", Rating: 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UploadMaterials(ctx, f.tutor, id, []Upload{{Name: "worksheet.pdf", Body: strings.NewReader("pdf")}}); err != nil {
		t.Fatal(err)
	}
	if withRecording {
		if _, err := f.svc.UploadRecording(ctx, f.tutor, id, "class.mp4", strings.NewReader("mp4")); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSessionCompliance_MissingRecording(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 1, models.SessionCompleted)
	f.completeChecklist(t, s.ID, false)

	c, err := f.svc.SessionCompliance(context.Background(), f.tutor, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Score != 75 || c.AllMet || c.Checklist.RecordingUploaded {
		t.Fatalf("compliance = %+v", c)
	}
	if c.Overdue {
		t.Fatal("deadline has not passed yet")
	}

	f.now = s.ComplianceDeadline.Add(time.Minute)
	c, _ = f.svc.SessionCompliance(context.Background(), f.tutor, s.ID)
	if !c.Overdue {
		t.Fatal("expected overdue after the deadline")
	}
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, 1, models.SessionInProgress)

	_, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: s.ID, StudentID: f.student.ID, Status: "absent"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("absent without reason: got %v", err)
	}
	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: s.ID, StudentID: f.student.ID, Status: "sleeping"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad status: got %v", err)
	}

	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: s.ID, StudentID: f.student.ID, Status: "absent", Reason: "sick"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: s.ID, StudentID: f.student.ID, Status: "late", LateMinutes: 7}); err != nil {
		t.Fatal(err)
	}

	records, err := f.svc.ListAttendance(ctx, f.tutor, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != models.AttendanceLate || records[0].LateMinutes != 7 {
		t.Fatalf("records = %+v", records)
	}

	c, _ := f.svc.SessionCompliance(ctx, f.admin, s.ID)
	if !c.Checklist.AttendanceMarked {
		t.Fatal("attendance item not ticked")
	}

	cancelled := f.session(t, 2, models.SessionCancelled)
	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: cancelled.ID, StudentID: f.student.ID, Status: "present"}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("cancelled session: got %v", err)
	}
	if _, err := f.svc.MarkAttendance(ctx, f.tutor, MarkAttendanceInput{SessionID: s.ID, StudentID: 4242, Status: "present"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown student: got %v", err)
	}
}

func TestMarkAttendance_OtherTutorDenied(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 1, models.SessionInProgress)
	other := &models.User{ID: 999, Username: "other", Role: models.RoleTutor, IsActive: true, IsApproved: true}

	_, err := f.svc.MarkAttendance(context.Background(), other, MarkAttendanceInput{SessionID: s.ID, StudentID: f.student.ID, Status: "present"})
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("got %v", err)
	}
}

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	running := f.session(t, 1, models.SessionInProgress)
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: running.ID, Feedback: "x", Rating: 5}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("feedback before completion: got %v", err)
	}

	a := f.session(t, 2, models.SessionCompleted)
	b := f.session(t, 3, models.SessionCompleted)
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: a.ID, Feedback: "good", Rating: 6}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("rating out of range: got %v", err)
	}
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: a.ID, Feedback: "good", Rating: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: b.ID, Feedback: "ok", Rating: 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitFeedback(ctx, f.tutor, FeedbackInput{SessionID: b.ID, Feedback: "again", Rating: 1}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("second feedback: got %v", err)
	}

	tutor, _ := store.Read(ctx, f.st, func(tx store.Tx) (*models.User, error) { return tx.GetUser(ctx, f.tutor.ID) })
	if tutor.FeedbackCount != 2 || tutor.FeedbackRating != 4.5 {
		t.Fatalf("rating = %v over %d", tutor.FeedbackRating, tutor.FeedbackCount)
	}
}

func TestUploadRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, 1, models.SessionCompleted)

	got, err := f.svc.UploadRecording(ctx, f.tutor, s.ID, "class.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.RecordingUploaded || got.RecordingUploadedAt == nil {
		t.Fatalf("session = %+v", got)
	}
	b, err := os.ReadFile(got.RecordingPath)
	if err != nil || string(b) != "video" {
		t.Fatalf("stored file = %q, %v", b, err)
	}

	scheduled := f.session(t, 2, models.SessionScheduled)
	if _, err := f.svc.UploadRecording(ctx, f.tutor, scheduled.ID, "class.mp4", strings.NewReader("video")); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("upload before completion: got %v", err)
	}
	if _, err := f.svc.UploadMaterials(ctx, f.tutor, s.ID, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("no materials: got %v", err)
	}
}

// racingFiles saves to disk, then runs onSave as if another request changed
// the session while the file was being written.
type racingFiles struct {
	*files.Local
	saved  []string
	onSave func()
}

func (r *racingFiles) Save(ctx context.Context, dir, name string, body io.Reader) (string, error) {
	p, err := r.Local.Save(ctx, dir, name, body)
	if err == nil {
		r.saved = append(r.saved, p)
		r.onSave()
	}
	return p, err
}

func TestUpload_RemovesFileWhenNotRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, 1, models.SessionCompleted)
	fs := &racingFiles{Local: files.NewLocal(t.TempDir(), 0), onSave: func() {
		err := f.st.InTx(ctx, func(tx store.Tx) error {
			sess, err := tx.GetSession(ctx, s.ID)
			if err != nil {
				return err
			}
			sess.Status = models.SessionCancelled
			return tx.UpdateSession(ctx, sess)
		})
		if err != nil {
			t.Fatal(err)
		}
	}}
	f.svc = New(f.st, Options{Files: fs, Now: func() time.Time { return f.now }})

	if _, err := f.svc.UploadRecording(ctx, f.tutor, s.ID, "class.mp4", strings.NewReader("video")); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("got %v", err)
	}
	if len(fs.saved) != 1 {
		t.Fatalf("saved %d files", len(fs.saved))
	}
	if _, err := os.Stat(fs.saved[0]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("recording left on disk: %v", err)
	}

	got, err := store.Read(ctx, f.st, func(tx store.Tx) (*models.ClassSession, error) { return tx.GetSession(ctx, s.ID) })
	if err != nil {
		t.Fatal(err)
	}
	if got.RecordingUploaded || got.RecordingPath != "" {
		t.Fatalf("session recorded the upload: %+v", got)
	}
}

func TestComplianceRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	period := RateFilter{From: time.Date(2024, 1, 1, 0, 0, 0, 0, ist), To: time.Date(2024, 2, 1, 0, 0, 0, 0, ist)}

	rate, err := f.svc.ComplianceRate(ctx, f.admin, period)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 100 {
		t.Fatalf("empty period rate = %v", rate)
	}

	full := f.session(t, 1, models.SessionCompleted)
	f.completeChecklist(t, full.ID, true)
	partial := f.session(t, 2, models.SessionCompleted)
	f.completeChecklist(t, partial.ID, false)
	f.session(t, 3, models.SessionCompleted)
	f.session(t, 4, models.SessionScheduled)

	rate, err = f.svc.ComplianceRate(ctx, f.admin, period)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 33.3 {
		t.Fatalf("rate = %v, want 33.3", rate)
	}

	list, err := f.svc.ListCompliance(ctx, f.tutor, period)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("compliance rows = %d", len(list))
	}

	if _, err := f.svc.ComplianceRate(ctx, f.admin, RateFilter{From: period.To, To: period.From}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("inverted period: got %v", err)
	}
}

func TestOverdueSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.session(t, 1, models.SessionCompleted)
	f.completeChecklist(t, done.ID, true)
	missing := f.session(t, 2, models.SessionCompleted)
	f.session(t, 3, models.SessionCancelled)

	now := time.Date(2024, 1, 10, 0, 0, 0, 0, ist)
	got, err := f.svc.OverdueSessions(ctx, f.admin, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != missing.ID {
		t.Fatalf("overdue = %+v", got)
	}

	got, _ = f.svc.OverdueSessions(ctx, f.admin, time.Date(2024, 1, 2, 0, 0, 0, 0, ist))
	if len(got) != 0 {
		t.Fatalf("nothing is overdue yet, got %d", len(got))
	}
}
