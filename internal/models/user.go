package models

import "time"

type Role string

const (
	RoleSuperadmin         Role = "superadmin"
	RoleAdmin              Role = "admin"
	RoleCoordinator        Role = "coordinator"
	RoleTutor              Role = "tutor"
	RoleFinanceCoordinator Role = "finance_coordinator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleCoordinator, RoleTutor, RoleFinanceCoordinator:
		return true
	}
	return false
}

type User struct {
	ID           int64   `db:"id" json:"id"`
	Username     string  `db:"username" json:"username"`
	Email        string  `db:"email" json:"email"`
	PasswordHash string  `db:"password_hash" json:"-"`
	FullName     string  `db:"full_name" json:"full_name"`
	Phone        string  `db:"phone" json:"phone,omitempty"`
	Role         Role    `db:"role" json:"role"`
	DepartmentID *int64  `db:"department_id" json:"department_id,omitempty"`
	IsActive     bool    `db:"is_active" json:"is_active"`
	IsApproved   bool    `db:"is_approved" json:"is_approved"`
	// Permissions overrides the role defaults when non-nil.
	Permissions    []string `db:"permissions" json:"permissions,omitempty"`
	HourlyRate     *float64 `db:"hourly_rate" json:"hourly_rate,omitempty"`
	TelegramChatID *int64   `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`

	TotalClassesTaught  int        `db:"total_classes_taught" json:"total_classes_taught"`
	FeedbackRating      float64    `db:"feedback_rating" json:"feedback_rating"`
	FeedbackCount       int        `db:"feedback_count" json:"feedback_count"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// RateOr returns the user's hourly rate or def when none is set.
func (u User) RateOr(def float64) float64 {
	if u.HourlyRate != nil && *u.HourlyRate > 0 {
		return *u.HourlyRate
	}
	return def
}

// AddRating folds one feedback rating into the running average.
func (u *User) AddRating(r float64) {
	total := u.FeedbackRating*float64(u.FeedbackCount) + r
	u.FeedbackCount++
	u.FeedbackRating = Round(total/float64(u.FeedbackCount), 2)
}

// InDepartment reports whether the user belongs to department id.
func (u User) InDepartment(id int64) bool {
	return u.DepartmentID != nil && *u.DepartmentID == id
}

type UserFilter struct {
	Role         Role
	DepartmentID *int64
	ActiveOnly   bool
	PendingOnly  bool
}
