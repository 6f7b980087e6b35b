// Package store declares the persistence contract shared by the Postgres
// implementation (internal/db) and the in-memory one (store/memstore).
package store

import (
	"context"
	"time"

	"github.com/Spok95/tutorcenter/internal/models"
)

// Store runs fn inside one transaction. Any error returned by fn rolls back
// every write fn made.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of queries available inside a transaction. Getters return
// an apperr NotFound error for missing rows; unique violations surface as
// apperr Conflict errors.
type Tx interface {
	UserRepo
	DepartmentRepo
	StudentRepo
	EnrollmentRepo
	SessionRepo
	AttendanceRepo
	FeeRepo
	PayrollRepo
	ExpenseRepo
	AvailabilityRepo
}

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// LockUser loads the user and holds a row lock until the transaction ends.
	LockUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, error)
	CountUsers(ctx context.Context, f models.UserFilter) (int, error)
}

type DepartmentRepo interface {
	CreateDepartment(ctx context.Context, d *models.Department) error
	GetDepartment(ctx context.Context, id int64) (*models.Department, error)
	// FindDepartment returns nil, nil when neither name nor code is taken.
	FindDepartment(ctx context.Context, name, code string) (*models.Department, error)
	UpdateDepartment(ctx context.Context, d *models.Department) error
	DeleteDepartment(ctx context.Context, id int64) error
	ListDepartments(ctx context.Context, activeOnly bool) ([]models.Department, error)
}

type StudentRepo interface {
	CreateStudent(ctx context.Context, s *models.Student) error
	GetStudent(ctx context.Context, id int64) (*models.Student, error)
	StudentCodeExists(ctx context.Context, code string) (bool, error)
	UpdateStudent(ctx context.Context, s *models.Student) error
	ListStudents(ctx context.Context, f models.StudentFilter) ([]models.Student, error)
	CountStudents(ctx context.Context, f models.StudentFilter) (int, error)
}

type EnrollmentRepo interface {
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *models.Enrollment) error
	ListEnrollments(ctx context.Context, f models.EnrollmentFilter) ([]models.Enrollment, error)
}

type SessionRepo interface {
	CreateSession(ctx context.Context, s *models.ClassSession) error
	// InsertSessionIfAbsent skips rows whose (enrollment, slot start)
	// already exists and reports whether a row was written.
	InsertSessionIfAbsent(ctx context.Context, s *models.ClassSession) (bool, error)
	GetSession(ctx context.Context, id int64) (*models.ClassSession, error)
	UpdateSession(ctx context.Context, s *models.ClassSession) error
	ListSessions(ctx context.Context, f models.SessionFilter) ([]models.ClassSession, error)
	MarkReminded(ctx context.Context, ids []int64) error
	MarkComplianceAlerted(ctx context.Context, ids []int64) error

	CreateLateArrival(ctx context.Context, la *models.LateArrival) error
	ListLateArrivals(ctx context.Context, tutorID int64, from, to time.Time) ([]models.LateArrival, error)
}

type AttendanceRepo interface {
	// UpsertAttendance writes the single record for (session, student).
	UpsertAttendance(ctx context.Context, a *models.Attendance) error
	ListAttendance(ctx context.Context, sessionID int64) ([]models.Attendance, error)
}

type FeeRepo interface {
	CreateFee(ctx context.Context, f *models.Fee) error
	GetFee(ctx context.Context, id int64) (*models.Fee, error)
	// LockFee loads the fee with a row lock held until the transaction ends.
	LockFee(ctx context.Context, id int64) (*models.Fee, error)
	UpdateFee(ctx context.Context, f *models.Fee) error
	ListFees(ctx context.Context, f models.FeeFilter) ([]models.Fee, error)
	CreateFeePayment(ctx context.Context, p *models.FeePayment) error
	ListFeePayments(ctx context.Context, f models.PaymentFilter) ([]models.FeePayment, error)

	CreateInstallment(ctx context.Context, i *models.FeeInstallment) error
	// LockInstallment loads the installment with a row lock.
	LockInstallment(ctx context.Context, id int64) (*models.FeeInstallment, error)
	UpdateInstallment(ctx context.Context, i *models.FeeInstallment) error
	// ListInstallments returns the fee's installments by number.
	ListInstallments(ctx context.Context, feeID int64) ([]models.FeeInstallment, error)
}

type PayrollRepo interface {
	CreatePayroll(ctx context.Context, p *models.PayrollRecord) error
	GetPayroll(ctx context.Context, id int64) (*models.PayrollRecord, error)
	// FindPayroll returns nil, nil when the tutor has no record for the period.
	FindPayroll(ctx context.Context, tutorID int64, month, year int) (*models.PayrollRecord, error)
	UpdatePayroll(ctx context.Context, p *models.PayrollRecord) error
	ListPayroll(ctx context.Context, f models.PayrollFilter) ([]models.PayrollRecord, error)
}

type ExpenseRepo interface {
	CreateExpense(ctx context.Context, e *models.ExpenseRecord) error
	LockExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error)
	UpdateExpense(ctx context.Context, e *models.ExpenseRecord) error
	ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.ExpenseRecord, error)
}

type AvailabilityRepo interface {
	ListAvailability(ctx context.Context, tutorID int64) ([]models.AvailabilitySlot, error)
	// ReplaceAvailability swaps the tutor's weekly slots for slots.
	ReplaceAvailability(ctx context.Context, tutorID int64, slots []models.AvailabilitySlot) error
}

// ResetToken is what a password reset token resolves to.
type ResetToken struct {
	UserID    int64
	ExpiresAt time.Time
}

// TokenStore keeps short-lived password reset tokens outside the process.
type TokenStore interface {
	PutToken(ctx context.Context, token string, t ResetToken) error
	// TakeToken deletes and returns the token; ok is false when absent.
	TakeToken(ctx context.Context, token string) (ResetToken, bool, error)
	// PurgeExpiredTokens drops tokens past expiry and reports how many.
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// Read runs fn in a transaction and returns its value.
func Read[T any](ctx context.Context, s Store, fn func(tx Tx) (T, error)) (T, error) {
	var out T
	err := s.InTx(ctx, func(tx Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
