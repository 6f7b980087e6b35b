package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/store/memstore"
)

type sent struct {
	to   string
	kind notify.Kind
	p    notify.Payload
}

type sentLog struct{ msgs []sent }

func (s *sentLog) Notify(_ context.Context, u models.User, k notify.Kind, p notify.Payload) error {
	s.msgs = append(s.msgs, sent{to: u.Username, kind: k, p: p})
	return nil
}

func (s *sentLog) kinds() []notify.Kind {
	out := make([]notify.Kind, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.kind
	}
	return out
}

type fixture struct {
	svc   *Service
	st    *memstore.Store
	now   time.Time
	sent  *sentLog
	root  *models.User
	coord *models.User
	tutor *models.User
	dept  *models.Department
	other *models.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memstore.New(), sent: &sentLog{}, now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	f.svc = New(f.st, Options{
		Tokens:      f.st,
		BcryptCost:  bcrypt.MinCost,
		Now:         func() time.Time { return f.now },
		Notifier:    f.sent,
		StudentCode: models.NewStudentCode,
	})

	var err error
	f.root, err = f.svc.CreateSuperadmin(ctx, SuperadminInput{
		Username: "root", Email: "root@example.com", Password: "secret1", FullName: "Root",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.dept, err = f.svc.CreateDepartment(ctx, f.root, DepartmentInput{Name: "Science", Code: "sci"})
	if err != nil {
		t.Fatal(err)
	}
	f.other, err = f.svc.CreateDepartment(ctx, f.root, DepartmentInput{Name: "Arts", Code: "ART"})
	if err != nil {
		t.Fatal(err)
	}
	f.coord, err = f.svc.CreateUser(ctx, f.root, CreateUserInput{
		Username: "coord", Email: "coord@example.com", Password: "secret1", FullName: "Coordinator",
		Role: string(models.RoleCoordinator), DepartmentID: &f.dept.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.tutor, err = f.svc.CreateUser(ctx, f.root, CreateUserInput{
		Username: "tutor", Email: "tutor@example.com", Password: "secret1", FullName: "Meera",
		Role: string(models.RoleTutor), DepartmentID: &f.dept.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.sent.msgs = nil
	return f
}

func TestCreateSuperadmin_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSuperadmin(context.Background(), SuperadminInput{
		Username: "root2", Email: "root2@example.com", Password: "secret1", FullName: "Second",
	})
	if !errors.Is(err, apperr.ErrState) {
		t.Fatalf("want State, got %v", err)
	}
}

func TestRegisterAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, RegisterInput{
		Username: "newbie", Email: "Newbie@Example.com", Password: "secret1", FullName: "New Tutor",
		Role: "tutor", DepartmentID: &f.dept.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.IsApproved || !u.IsActive || u.Email != "newbie@example.com" {
		t.Fatalf("unexpected registration state: %+v", u)
	}
	if diff := cmp.Diff([]notify.Kind{notify.Welcome, notify.RegistrationQueue}, f.sent.kinds()); diff != "" {
		t.Fatalf("notifications (-want +got):\n%s", diff)
	}
	if f.sent.msgs[1].to != "root" {
		t.Fatalf("registration queue went to %s", f.sent.msgs[1].to)
	}

	if _, err := f.svc.Authenticate(ctx, "newbie", "secret1"); !errors.Is(err, ErrPendingApproval) {
		t.Fatalf("want pending approval, got %v", err)
	}
	if _, err := f.svc.Approve(ctx, f.coord, u.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("coordinator approved a user: %v", err)
	}
	if _, err := f.svc.Approve(ctx, f.root, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Approve(ctx, f.root, u.ID); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("second approval: want State, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "newbie@example.com", "secret1"); err != nil {
		t.Fatalf("login after approval: %v", err)
	}
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := RegisterInput{Username: "xavier", Email: "xavier@example.com", Password: "secret1", FullName: "X", Role: "tutor"}

	admin := base
	admin.Role = "admin"
	if _, err := f.svc.Register(ctx, admin); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("admin self-registration: want Validation, got %v", err)
	}
	short := base
	short.Password = "abc"
	if _, err := f.svc.Register(ctx, short); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("short password: want Validation, got %v", err)
	}
	dup := base
	dup.Username = "tutor"
	if _, err := f.svc.Register(ctx, dup); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("taken username: want Conflict, got %v", err)
	}
	missing := base
	missing.DepartmentID = ptr(int64(999))
	if _, err := f.svc.Register(ctx, missing); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown department: want Validation, got %v", err)
	}
}

func TestReject_Deactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.Register(ctx, RegisterInput{
		Username: "nope", Email: "nope@example.com", Password: "secret1", FullName: "Nope", Role: "tutor",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.sent.msgs = nil
	u, err = f.svc.Reject(ctx, f.root, u.ID, "no vacancy")
	if err != nil {
		t.Fatal(err)
	}
	if u.IsActive {
		t.Fatal("rejected user still active")
	}
	if len(f.sent.msgs) != 1 || f.sent.msgs[0].kind != notify.Rejection || f.sent.msgs[0].p["reason"] != "no vacancy" {
		t.Fatalf("unexpected notifications: %+v", f.sent.msgs)
	}
	if _, err := f.svc.Authenticate(ctx, "nope", "secret1"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("want disabled, got %v", err)
	}
}

func TestAuthenticate_FailedAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Authenticate(ctx, "tutor", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want invalid credentials, got %v", i, err)
		}
	}
	if got := f.user(t, f.tutor.ID).FailedLoginAttempts; got != 3 {
		t.Fatalf("failed attempts = %d, want 3", got)
	}
	if _, err := f.svc.Authenticate(ctx, "ghost", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown login: want invalid credentials, got %v", err)
	}

	u, err := f.svc.Authenticate(ctx, "TUTOR", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if u.FailedLoginAttempts != 0 || u.LastLogin == nil || !u.LastLogin.Equal(f.now) {
		t.Fatalf("login not stamped: %+v", u)
	}
	if got := f.user(t, f.tutor.ID).FailedLoginAttempts; got != 0 {
		t.Fatalf("stored failed attempts = %d after success", got)
	}
}

func TestDeactivateReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Deactivate(ctx, f.root, f.root.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("self deactivation: want Validation, got %v", err)
	}
	if _, err := f.svc.Deactivate(ctx, f.root, f.tutor.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Authenticate(ctx, "tutor", "secret1"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("want disabled, got %v", err)
	}
	if _, err := f.svc.Reactivate(ctx, f.root, f.tutor.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reactivate(ctx, f.root, f.tutor.ID); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("want State, got %v", err)
	}
}

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdatePermissions(ctx, f.root, f.tutor.ID, []string{"fly"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown permission: want Validation, got %v", err)
	}
	u, err := f.svc.UpdatePermissions(ctx, f.root, f.tutor.ID, []string{"view_own_classes", "view_own_payroll"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"view_own_classes", "view_own_payroll"}, u.Permissions); diff != "" {
		t.Fatalf("permissions (-want +got):\n%s", diff)
	}
	u, err = f.svc.UpdatePermissions(ctx, f.root, f.tutor.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if u.Permissions != nil {
		t.Fatalf("defaults not restored: %v", u.Permissions)
	}
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown address should succeed silently: %v", err)
	}
	if len(f.sent.msgs) != 0 {
		t.Fatalf("sent %d notifications for unknown address", len(f.sent.msgs))
	}

	if err := f.svc.RequestPasswordReset(ctx, "tutor@example.com"); err != nil {
		t.Fatal(err)
	}
	if len(f.sent.msgs) != 1 || f.sent.msgs[0].kind != notify.PasswordReset {
		t.Fatalf("unexpected notifications: %+v", f.sent.msgs)
	}
	token := f.sent.msgs[0].p["token"]
	if token == "" {
		t.Fatal("no token sent")
	}

	if err := f.svc.ResetPassword(ctx, ResetPasswordInput{Token: token, Password: "newpass1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Authenticate(ctx, "tutor", "newpass1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	err := f.svc.ResetPassword(ctx, ResetPasswordInput{Token: token, Password: "another1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("reused token: want Validation, got %v", err)
	}
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestPasswordReset(ctx, "tutor@example.com"); err != nil {
		t.Fatal(err)
	}
	token := f.sent.msgs[0].p["token"]
	f.now = f.now.Add(DefaultResetTTL + time.Minute)
	err := f.svc.ResetPassword(ctx, ResetPasswordInput{Token: token, Password: "newpass1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expired token: want Validation, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.svc.ChangePassword(ctx, f.tutor, ChangePasswordInput{Current: "wrong", New: "newpass1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("wrong current password: want Validation, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, f.tutor, ChangePasswordInput{Current: "secret1", New: "newpass1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Authenticate(ctx, "tutor", "newpass1"); err != nil {
		t.Fatal(err)
	}
}

func TestDepartments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.dept.Code != "SCI" {
		t.Fatalf("code not upper-cased: %q", f.dept.Code)
	}
	_, err := f.svc.CreateDepartment(ctx, f.root, DepartmentInput{Name: "Sciences", Code: "Sci"})
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict || ae.Conflicting != "SCI" {
		t.Fatalf("want Conflict naming SCI, got %v", err)
	}
	if _, err := f.svc.CreateDepartment(ctx, f.root, DepartmentInput{Name: "Bad", Code: "a b"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad code: want Validation, got %v", err)
	}
	if _, err := f.svc.CreateDepartment(ctx, f.coord, DepartmentInput{Name: "Maths", Code: "MAT"}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("coordinator: want Authorization, got %v", err)
	}

	if err := f.svc.DeleteDepartment(ctx, f.root, f.dept.ID); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("department with users: want State, got %v", err)
	}
	if err := f.svc.DeleteDepartment(ctx, f.root, f.other.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.DeactivateDepartment(ctx, f.root, f.dept.ID); err != nil {
		t.Fatal(err)
	}
	active, err := f.svc.ListDepartments(ctx, f.tutor, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("tutor sees inactive departments: %+v", active)
	}
	all, err := f.svc.ListDepartments(ctx, f.root, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].IsActive {
		t.Fatalf("unexpected departments: %+v", all)
	}
	if _, err := f.svc.ReactivateDepartment(ctx, f.root, f.dept.ID); err != nil {
		t.Fatal(err)
	}
}

func TestStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codes := []string{"STU2400001", "STU2400001", "STU2400002"}
	f.svc.studentCode = func(time.Time) string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	a, err := f.svc.CreateStudent(ctx, f.coord, StudentInput{FullName: "Arjun", Grade: "10"})
	if err != nil {
		t.Fatal(err)
	}
	if a.StudentID != "STU2400001" || a.DepartmentID == nil || *a.DepartmentID != f.dept.ID {
		t.Fatalf("unexpected student: %+v", a)
	}
	b, err := f.svc.CreateStudent(ctx, f.coord, StudentInput{FullName: "Bela", Grade: "9"})
	if err != nil {
		t.Fatal(err)
	}
	if b.StudentID != "STU2400002" {
		t.Fatalf("collision not retried: %s", b.StudentID)
	}

	_, err = f.svc.CreateStudent(ctx, f.coord, StudentInput{FullName: "C", Grade: "8", DepartmentID: &f.other.ID})
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("other department: want Authorization, got %v", err)
	}

	list, err := f.svc.ListStudents(ctx, f.coord, models.StudentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 students, got %d", len(list))
	}
	if _, err := f.svc.ListStudents(ctx, f.coord, models.StudentFilter{DepartmentID: &f.other.ID}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("foreign department listing: want Authorization, got %v", err)
	}

	if _, err := f.svc.DeactivateStudent(ctx, f.coord, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.DeactivateStudent(ctx, f.coord, b.ID); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("want State, got %v", err)
	}
}

func TestEnrollAndEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.CreateStudent(ctx, f.coord, StudentInput{FullName: "Arjun", Grade: "10"})
	if err != nil {
		t.Fatal(err)
	}
	in := EnrollInput{
		StudentID: st.ID, TutorID: f.tutor.ID, Subject: "Physics",
		Schedule:  []models.ScheduleSlot{{Day: "Monday", Time: "16:00"}},
		StartDate: "2024-03-04",
	}
	e, err := f.svc.Enroll(ctx, f.coord, in)
	if err != nil {
		t.Fatal(err)
	}
	if e.Schedule[0].Day != "monday" || e.SessionMinutes != 60 || e.Status != models.EnrollmentActive {
		t.Fatalf("unexpected enrollment: %+v", e)
	}

	bad := in
	bad.Schedule = []models.ScheduleSlot{{Day: "Funday", Time: "16:00"}}
	if _, err := f.svc.Enroll(ctx, f.coord, bad); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad weekday: want Validation, got %v", err)
	}
	notTutor := in
	notTutor.TutorID = f.coord.ID
	if _, err := f.svc.Enroll(ctx, f.coord, notTutor); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("non-tutor: want Validation, got %v", err)
	}

	// one past and two future sessions
	err = f.st.InTx(ctx, func(tx store.Tx) error {
		for _, day := range []int{-7, 7, 14} {
			start := f.now.AddDate(0, 0, day)
			if err := tx.CreateSession(ctx, &models.ClassSession{
				EnrollmentID: &e.ID, TutorID: f.tutor.ID, StudentID: &st.ID, Subject: "Physics",
				Date: start, StartsAt: start, EndsAt: start.Add(time.Hour), Status: models.SessionScheduled,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.svc.EndEnrollment(ctx, f.coord, e.ID, models.EnrollmentPaused); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("paused is not an end state: got %v", err)
	}
	e, n, err := f.svc.EndEnrollment(ctx, f.coord, e.ID, models.EnrollmentCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || e.Status != models.EnrollmentCancelled {
		t.Fatalf("cancelled %d sessions, status %s", n, e.Status)
	}
	if _, _, err := f.svc.EndEnrollment(ctx, f.coord, e.ID, models.EnrollmentCompleted); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("second end: want State, got %v", err)
	}
	if _, err := f.svc.UpdateEnrollment(ctx, f.coord, e.ID, UpdateEnrollmentInput{Subject: ptr("Maths")}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("update after end: want State, got %v", err)
	}
}

func (f *fixture) user(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := store.Read(context.Background(), f.st, func(tx store.Tx) (*models.User, error) {
		return tx.GetUser(context.Background(), id)
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func ptr[T any](v T) *T { return &v }
