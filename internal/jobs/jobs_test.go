package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/store/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	to      int64
	kind    notify.Kind
	payload notify.Payload
}

type sentLog struct{ msgs []sent }

func (s *sentLog) Notify(_ context.Context, u models.User, k notify.Kind, p notify.Payload) error {
	s.msgs = append(s.msgs, sent{to: u.ID, kind: k, payload: p})
	return nil
}

type alertLog struct{ texts []string }

func (a *alertLog) Alert(_ context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

func TestRunner_Every(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, time.UTC, nil)
	ran := make(chan struct{}, 1)
	r.Every(5*time.Millisecond, "tick", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	r.Wait()
}

func TestRunner_Cron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, time.UTC, nil)
	if err := r.Cron("not a spec", "bad", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected spec error")
	}
	if err := r.Cron("0 6 1 * *", "payroll", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	cancel()
	r.Wait()
}

func TestRunner_RunRecoversPanic(t *testing.T) {
	r := New(context.Background(), time.UTC, nil)
	err := r.Run("boom", func(context.Context) error { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("got %v", err)
	}
	want := errors.New("failed")
	if err := r.Run("fail", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("got %v", err)
	}
}

type fixture struct {
	st    *memstore.Store
	tasks *Tasks
	sent  *sentLog
	now   time.Time
	admin *models.User
	tutor *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memstore.New(), sent: &sentLog{}}
	f.now = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	err := f.st.InTx(ctx, func(tx store.Tx) error {
		f.admin = &models.User{Username: "root", Role: models.RoleSuperadmin, IsActive: true, IsApproved: true}
		rate := 400.0
		f.tutor = &models.User{Username: "meera", FullName: "Meera", Role: models.RoleTutor,
			IsActive: true, IsApproved: true, HourlyRate: &rate}
		for _, u := range []*models.User{f.admin, f.tutor} {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	clock := func() time.Time { return f.now }
	f.tasks = &Tasks{
		Store:    f.st,
		Notifier: f.sent,
		Finance:  finance.New(f.st, finance.Options{Location: time.UTC, Now: clock}),
		Location: time.UTC,
		Now:      clock,
	}
	return f
}

func (f *fixture) session(t *testing.T, s models.ClassSession) models.ClassSession {
	t.Helper()
	ctx := context.Background()
	s.TutorID = f.tutor.ID
	if s.Subject == "" {
		s.Subject = "Physics"
	}
	s.EndsAt = s.StartsAt.Add(time.Hour)
	s.Date = s.StartsAt.Truncate(24 * time.Hour)
	if err := f.st.InTx(ctx, func(tx store.Tx) error { return tx.CreateSession(ctx, &s) }); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.session(t, models.ClassSession{StartsAt: f.now.Add(2 * time.Hour), Status: models.SessionScheduled,
		MeetingLink: "https://meet.example/abc"})
	f.session(t, models.ClassSession{StartsAt: f.now.Add(30 * time.Hour), Status: models.SessionScheduled})
	f.session(t, models.ClassSession{StartsAt: f.now.Add(4 * time.Hour), Status: models.SessionCancelled})

	if err := f.tasks.SessionReminders(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.sent.msgs) != 1 {
		t.Fatalf("want 1 reminder, got %d", len(f.sent.msgs))
	}
	m := f.sent.msgs[0]
	if m.to != f.tutor.ID || m.kind != notify.SessionReminder || m.payload["meeting_link"] != "https://meet.example/abc" {
		t.Fatalf("unexpected reminder %+v", m)
	}

	// a second run finds nothing new
	if err := f.tasks.SessionReminders(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.sent.msgs) != 1 {
		t.Fatalf("reminded twice: %d", len(f.sent.msgs))
	}
	got, err := store.Read(ctx, f.st, func(tx store.Tx) (*models.ClassSession, error) { return tx.GetSession(ctx, soon.ID) })
	if err != nil {
		t.Fatal(err)
	}
	if !got.ReminderSent {
		t.Fatal("session not marked")
	}
}

func TestComplianceAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.now.Add(-72 * time.Hour)
	f.session(t, models.ClassSession{StartsAt: start, Status: models.SessionCompleted,
		AttendanceMarked: true, FeedbackSubmitted: true,
		ComplianceDeadline: start.Add(time.Hour + models.ComplianceWindow)})
	f.session(t, models.ClassSession{StartsAt: start.Add(2 * time.Hour), Status: models.SessionCompleted,
		AttendanceMarked: true, FeedbackSubmitted: true, RecordingUploaded: true, MaterialsUploaded: true,
		ComplianceDeadline: start.Add(3*time.Hour + models.ComplianceWindow)})
	f.session(t, models.ClassSession{StartsAt: f.now.Add(-2 * time.Hour), Status: models.SessionCompleted,
		ComplianceDeadline: f.now.Add(23 * time.Hour)})

	if err := f.tasks.ComplianceAlerts(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.sent.msgs) != 1 {
		t.Fatalf("want 1 alert, got %d", len(f.sent.msgs))
	}
	if got := f.sent.msgs[0].payload["missing"]; got != "recording, materials" {
		t.Fatalf("missing = %q", got)
	}
	if err := f.tasks.ComplianceAlerts(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.sent.msgs) != 1 {
		t.Fatalf("alerted twice: %d", len(f.sent.msgs))
	}
}

func TestMonthlyPayroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.session(t, models.ClassSession{StartsAt: time.Date(2023, 12, 12, 10, 0, 0, 0, time.UTC), Status: models.SessionCompleted})
	alerts := &alertLog{}
	f.tasks.Alerter = alerts

	if err := f.tasks.MonthlyPayroll(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Read(ctx, f.st, func(tx store.Tx) (*models.PayrollRecord, error) {
		return tx.FindPayroll(ctx, f.tutor.ID, 12, 2023)
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("no payroll for December")
	}
	if rec.TotalClasses != 1 || rec.GrossAmount != 400 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.GeneratedBy == nil || *rec.GeneratedBy != f.admin.ID {
		t.Fatalf("generated by %v", rec.GeneratedBy)
	}

	// rerunning skips the existing record
	if err := f.tasks.MonthlyPayroll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(alerts.texts) != 2 {
		t.Fatalf("alerts = %q", alerts.texts)
	}
	if want := "Payroll 2023-12 generated: 1 new records, 0 already present."; alerts.texts[0] != want {
		t.Fatalf("first alert %q", alerts.texts[0])
	}
	if !strings.Contains(alerts.texts[1], "0 new records, 1 already present") {
		t.Fatalf("second alert %q", alerts.texts[1])
	}
}

func TestMonthlyPayroll_NoActor(t *testing.T) {
	f := newFixture(t)
	f.tasks.Store = memstore.New()
	if err := f.tasks.MonthlyPayroll(context.Background()); !errors.Is(err, ErrNoSystemActor) {
		t.Fatalf("got %v", err)
	}
}

func TestPurgeTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.SetClock(func() time.Time { return f.now })
	f.tasks.Tokens = f.st
	if err := f.st.PutToken(ctx, "old", store.ResetToken{UserID: f.tutor.ID, ExpiresAt: f.now.Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := f.st.PutToken(ctx, "fresh", store.ResetToken{UserID: f.tutor.ID, ExpiresAt: f.now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := f.tasks.PurgeTokens(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.st.TakeToken(ctx, "old"); ok {
		t.Fatal("expired token survived")
	}
	if _, ok, _ := f.st.TakeToken(ctx, "fresh"); !ok {
		t.Fatal("live token purged")
	}
}

func TestPreviousMonth(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	cases := []struct {
		now         time.Time
		month, year int
	}{
		{time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), 12, 2023},
		{time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), 2, 2024},
		// still February in UTC, already March in IST
		{time.Date(2024, 2, 29, 20, 0, 0, 0, time.UTC), 2, 2024},
	}
	for _, c := range cases {
		m, y := PreviousMonth(c.now, ist)
		if m != c.month || y != c.year {
			t.Errorf("PreviousMonth(%v) = %d/%d, want %d/%d", c.now, m, y, c.month, c.year)
		}
	}
}
