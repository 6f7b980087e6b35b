// Package memstore is an in-memory store.Store. Each transaction works on a
// copy of the data and swaps it in on success, so a failed operation leaves
// nothing behind. It enforces the same uniqueness and overlap constraints as
// the Postgres schema.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

type data struct {
	nextID       int64
	users        map[int64]models.User
	departments  map[int64]models.Department
	students     map[int64]models.Student
	enrollments  map[int64]models.Enrollment
	sessions     map[int64]models.ClassSession
	lateArrivals map[int64]models.LateArrival
	attendance   map[int64]models.Attendance
	fees         map[int64]models.Fee
	payments     map[int64]models.FeePayment
	payroll      map[int64]models.PayrollRecord
	installments map[int64]models.FeeInstallment
	expenses     map[int64]models.ExpenseRecord
	availability map[int64][]models.AvailabilitySlot // by tutor
}

func newData() *data {
	return &data{
		users:        map[int64]models.User{},
		departments:  map[int64]models.Department{},
		students:     map[int64]models.Student{},
		enrollments:  map[int64]models.Enrollment{},
		sessions:     map[int64]models.ClassSession{},
		lateArrivals: map[int64]models.LateArrival{},
		attendance:   map[int64]models.Attendance{},
		fees:         map[int64]models.Fee{},
		payments:     map[int64]models.FeePayment{},
		payroll:      map[int64]models.PayrollRecord{},
		installments: map[int64]models.FeeInstallment{},
		expenses:     map[int64]models.ExpenseRecord{},
		availability: map[int64][]models.AvailabilitySlot{},
	}
}

func (d *data) clone() *data {
	return &data{
		nextID:       d.nextID,
		users:        maps.Clone(d.users),
		departments:  maps.Clone(d.departments),
		students:     maps.Clone(d.students),
		enrollments:  maps.Clone(d.enrollments),
		sessions:     maps.Clone(d.sessions),
		lateArrivals: maps.Clone(d.lateArrivals),
		attendance:   maps.Clone(d.attendance),
		fees:         maps.Clone(d.fees),
		payments:     maps.Clone(d.payments),
		payroll:      maps.Clone(d.payroll),
		installments: maps.Clone(d.installments),
		expenses:     maps.Clone(d.expenses),
		availability: maps.Clone(d.availability),
	}
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

type Store struct {
	mu     sync.Mutex
	d      *data
	tokens map[string]store.ResetToken
	now    func() time.Time
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.TokenStore = (*Store)(nil)
	_ store.Tx         = (*tx)(nil)
)

func New() *Store {
	return &Store{d: newData(), tokens: map[string]store.ResetToken{}, now: time.Now}
}

func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(&tx{d: work, now: s.now}); err != nil {
		return err
	}
	s.d = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type tx struct {
	d   *data
	now func() time.Time
}

// users

func (t *tx) CreateUser(_ context.Context, u *models.User) error {
	for _, o := range t.d.users {
		if strings.EqualFold(o.Username, u.Username) {
			return apperr.Conflict("user", o.ID, "username %q is taken", u.Username)
		}
		if u.Email != "" && strings.EqualFold(o.Email, u.Email) {
			return apperr.Conflict("user", o.ID, "email %q is taken", u.Email)
		}
	}
	u.ID = t.d.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = t.now()
	}
	t.d.users[u.ID] = cloneUser(*u)
	return nil
}

func (t *tx) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	u = cloneUser(u)
	return &u, nil
}

func (t *tx) LockUser(ctx context.Context, id int64) (*models.User, error) {
	return t.GetUser(ctx, id)
}

func (t *tx) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	for _, u := range t.d.users {
		if strings.EqualFold(u.Username, login) || (u.Email != "" && strings.EqualFold(u.Email, login)) {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user", login)
}

func (t *tx) UpdateUser(_ context.Context, u *models.User) error {
	if _, ok := t.d.users[u.ID]; !ok {
		return apperr.NotFound("user", u.ID)
	}
	for _, o := range t.d.users {
		if o.ID != u.ID && u.Email != "" && strings.EqualFold(o.Email, u.Email) {
			return apperr.Conflict("user", o.ID, "email %q is taken", u.Email)
		}
	}
	t.d.users[u.ID] = cloneUser(*u)
	return nil
}

func (t *tx) ListUsers(_ context.Context, f models.UserFilter) ([]models.User, error) {
	out := make([]models.User, 0)
	for _, u := range t.d.users {
		if matchUser(u, f) {
			out = append(out, cloneUser(u))
		}
	}
	sortByID(out, func(u models.User) int64 { return u.ID })
	return out, nil
}

func (t *tx) CountUsers(ctx context.Context, f models.UserFilter) (int, error) {
	us, err := t.ListUsers(ctx, f)
	return len(us), err
}

func matchUser(u models.User, f models.UserFilter) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.DepartmentID != nil && !u.InDepartment(*f.DepartmentID) {
		return false
	}
	if f.ActiveOnly && !u.IsActive {
		return false
	}
	if f.PendingOnly && u.IsApproved {
		return false
	}
	return true
}

func cloneUser(u models.User) models.User {
	u.Permissions = slices.Clone(u.Permissions)
	return u
}

// departments

func (t *tx) CreateDepartment(ctx context.Context, d *models.Department) error {
	if o, _ := t.FindDepartment(ctx, d.Name, d.Code); o != nil {
		return apperr.Conflict("department", o.Code, "department %q/%q already exists", o.Name, o.Code)
	}
	d.ID = t.d.id()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = t.now()
	}
	d.FormIDs = slices.Clone(d.FormIDs)
	t.d.departments[d.ID] = *d
	return nil
}

func (t *tx) GetDepartment(_ context.Context, id int64) (*models.Department, error) {
	d, ok := t.d.departments[id]
	if !ok {
		return nil, apperr.NotFound("department", id)
	}
	d.FormIDs = slices.Clone(d.FormIDs)
	return &d, nil
}

func (t *tx) FindDepartment(_ context.Context, name, code string) (*models.Department, error) {
	for _, d := range t.d.departments {
		if (name != "" && strings.EqualFold(d.Name, name)) || (code != "" && strings.EqualFold(d.Code, code)) {
			d.FormIDs = slices.Clone(d.FormIDs)
			return &d, nil
		}
	}
	return nil, nil
}

func (t *tx) UpdateDepartment(_ context.Context, d *models.Department) error {
	if _, ok := t.d.departments[d.ID]; !ok {
		return apperr.NotFound("department", d.ID)
	}
	for _, o := range t.d.departments {
		if o.ID != d.ID && (strings.EqualFold(o.Name, d.Name) || strings.EqualFold(o.Code, d.Code)) {
			return apperr.Conflict("department", o.Code, "department %q/%q already exists", o.Name, o.Code)
		}
	}
	d.FormIDs = slices.Clone(d.FormIDs)
	t.d.departments[d.ID] = *d
	return nil
}

func (t *tx) DeleteDepartment(_ context.Context, id int64) error {
	if _, ok := t.d.departments[id]; !ok {
		return apperr.NotFound("department", id)
	}
	delete(t.d.departments, id)
	return nil
}

func (t *tx) ListDepartments(_ context.Context, activeOnly bool) ([]models.Department, error) {
	out := make([]models.Department, 0, len(t.d.departments))
	for _, d := range t.d.departments {
		if activeOnly && !d.IsActive {
			continue
		}
		d.FormIDs = slices.Clone(d.FormIDs)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// students

func (t *tx) CreateStudent(ctx context.Context, s *models.Student) error {
	if ok, _ := t.StudentCodeExists(ctx, s.StudentID); ok {
		return apperr.Conflict("student", s.StudentID, "student id %s already exists", s.StudentID)
	}
	s.ID = t.d.id()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.now()
	}
	t.d.students[s.ID] = *s
	return nil
}

func (t *tx) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	s, ok := t.d.students[id]
	if !ok {
		return nil, apperr.NotFound("student", id)
	}
	return &s, nil
}

func (t *tx) StudentCodeExists(_ context.Context, code string) (bool, error) {
	for _, s := range t.d.students {
		if s.StudentID == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) UpdateStudent(_ context.Context, s *models.Student) error {
	if _, ok := t.d.students[s.ID]; !ok {
		return apperr.NotFound("student", s.ID)
	}
	t.d.students[s.ID] = *s
	return nil
}

func (t *tx) ListStudents(_ context.Context, f models.StudentFilter) ([]models.Student, error) {
	out := make([]models.Student, 0)
	for _, s := range t.d.students {
		if f.DepartmentID != nil && (s.DepartmentID == nil || *s.DepartmentID != *f.DepartmentID) {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	sortByID(out, func(s models.Student) int64 { return s.ID })
	return out, nil
}

func (t *tx) CountStudents(ctx context.Context, f models.StudentFilter) (int, error) {
	ss, err := t.ListStudents(ctx, f)
	return len(ss), err
}

// enrollments

func (t *tx) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	if _, ok := t.d.students[e.StudentID]; !ok {
		return apperr.NotFound("student", e.StudentID)
	}
	if _, ok := t.d.users[e.TutorID]; !ok {
		return apperr.NotFound("tutor", e.TutorID)
	}
	e.ID = t.d.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	e.Schedule = slices.Clone(e.Schedule)
	t.d.enrollments[e.ID] = *e
	return nil
}

func (t *tx) GetEnrollment(_ context.Context, id int64) (*models.Enrollment, error) {
	e, ok := t.d.enrollments[id]
	if !ok {
		return nil, apperr.NotFound("enrollment", id)
	}
	e.Schedule = slices.Clone(e.Schedule)
	return &e, nil
}

func (t *tx) UpdateEnrollment(_ context.Context, e *models.Enrollment) error {
	if _, ok := t.d.enrollments[e.ID]; !ok {
		return apperr.NotFound("enrollment", e.ID)
	}
	e.Schedule = slices.Clone(e.Schedule)
	t.d.enrollments[e.ID] = *e
	return nil
}

func (t *tx) ListEnrollments(_ context.Context, f models.EnrollmentFilter) ([]models.Enrollment, error) {
	out := make([]models.Enrollment, 0)
	for _, e := range t.d.enrollments {
		if f.StudentID != nil && e.StudentID != *f.StudentID {
			continue
		}
		if f.TutorID != nil && e.TutorID != *f.TutorID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		e.Schedule = slices.Clone(e.Schedule)
		out = append(out, e)
	}
	sortByID(out, func(e models.Enrollment) int64 { return e.ID })
	return out, nil
}

func sortByID[T any](s []T, id func(T) int64) {
	sort.Slice(s, func(i, j int) bool { return id(s[i]) < id(s[j]) })
}
