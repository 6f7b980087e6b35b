package accounts

import (
	"context"
	"errors"
	"slices"
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

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrPendingApproval    = errors.New("account is pending approval")
)

type RegisterInput struct {
	Username     string   `json:"username" validate:"required,min=3,max=80,alphanumunicode"`
	Email        string   `json:"email" validate:"required,email,max=120"`
	Password     string   `json:"password" validate:"required,min=6,max=72"`
	FullName     string   `json:"full_name" validate:"required,max=200"`
	Phone        string   `json:"phone" validate:"omitempty,max=20"`
	Role         string   `json:"role" validate:"required,oneof=tutor coordinator finance_coordinator"`
	DepartmentID *int64   `json:"department_id"`
	HourlyRate   *float64 `json:"hourly_rate" validate:"omitempty,gt=0"`
}

// Register signs up a staff member. The account stays unusable until an
// approver accepts it; approvers are told a registration is waiting.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	var approvers []models.User
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := checkDepartment(ctx, tx, u.DepartmentID); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		approvers, err = listApprovers(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.log)
	log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	notify.Send(ctx, s.notifier, log, *u, notify.Welcome, nil)
	for _, a := range approvers {
		notify.Send(ctx, s.notifier, log, a, notify.RegistrationQueue, notify.Payload{
			"username": u.Username,
			"role":     string(u.Role),
		})
	}
	return u, nil
}

func (s *Service) newUser(in RegisterInput) (*models.User, error) {
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         models.Role(in.Role),
		DepartmentID: in.DepartmentID,
		HourlyRate:   in.HourlyRate,
		IsActive:     true,
	}, nil
}

func listApprovers(ctx context.Context, tx store.Tx) ([]models.User, error) {
	var out []models.User
	for _, r := range []models.Role{models.RoleSuperadmin, models.RoleAdmin} {
		us, err := tx.ListUsers(ctx, models.UserFilter{Role: r, ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		for _, u := range us {
			if access.Can(&u, access.ApproveUsers) {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

// CreateUserInput is RegisterInput with admin among the roles.
type CreateUserInput struct {
	Username     string   `json:"username" validate:"required,min=3,max=80,alphanumunicode"`
	Email        string   `json:"email" validate:"required,email,max=120"`
	Password     string   `json:"password" validate:"required,min=6,max=72"`
	FullName     string   `json:"full_name" validate:"required,max=200"`
	Phone        string   `json:"phone" validate:"omitempty,max=20"`
	Role         string   `json:"role" validate:"required,oneof=tutor coordinator finance_coordinator admin"`
	DepartmentID *int64   `json:"department_id"`
	HourlyRate   *float64 `json:"hourly_rate" validate:"omitempty,gt=0"`
}

// CreateUser adds an approved account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, actor *models.User, in CreateUserInput) (*models.User, error) {
	if err := access.Authorize(actor, access.ManageAllUsers, nil); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.newUser(RegisterInput(in))
	if err != nil {
		return nil, err
	}
	u.IsApproved = true
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := checkDepartment(ctx, tx, u.DepartmentID); err != nil {
			return err
		}
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.log)
	log.Info("user created", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	notify.Send(ctx, s.notifier, log, *u, notify.Approval, nil)
	return u, nil
}

type SuperadminInput struct {
	Username string `json:"username" validate:"required,min=3,max=80,alphanumunicode"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
}

// CreateSuperadmin bootstraps the first account. It refuses once any
// superadmin exists.
func (s *Service) CreateSuperadmin(ctx context.Context, in SuperadminInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.newUser(RegisterInput{
		Username: in.Username, Email: in.Email, Password: in.Password, FullName: in.FullName, Phone: in.Phone,
	})
	if err != nil {
		return nil, err
	}
	u.Role = models.RoleSuperadmin
	u.IsApproved = true
	u.Permissions = []string{access.All}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.CountUsers(ctx, models.UserFilter{Role: models.RoleSuperadmin})
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.State("user", "a superadmin already exists")
		}
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("superadmin created", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Approve activates a pending registration.
func (s *Service) Approve(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	u, err := s.updateUser(ctx, actor, access.ApproveUsers, id, func(u *models.User) error {
		if u.IsApproved {
			return apperr.State("user", "user %d is already approved", u.ID)
		}
		if !u.IsActive {
			return apperr.State("user", "user %d was rejected or deactivated", u.ID)
		}
		u.IsApproved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.log)
	log.Info("user approved", zap.Int64("user_id", u.ID))
	notify.Send(ctx, s.notifier, log, *u, notify.Approval, nil)
	return u, nil
}

// Reject turns down a pending registration and deactivates the account.
func (s *Service) Reject(ctx context.Context, actor *models.User, id int64, reason string) (*models.User, error) {
	u, err := s.updateUser(ctx, actor, access.ApproveUsers, id, func(u *models.User) error {
		if u.IsApproved {
			return apperr.State("user", "user %d is already approved", u.ID)
		}
		u.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.log)
	log.Info("user rejected", zap.Int64("user_id", u.ID), zap.String("reason", reason))
	notify.Send(ctx, s.notifier, log, *u, notify.Rejection, notify.Payload{"reason": strings.TrimSpace(reason)})
	return u, nil
}

func (s *Service) Deactivate(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	u, err := s.updateUser(ctx, actor, access.ManageAllUsers, id, func(u *models.User) error {
		switch {
		case u.ID == actor.ID:
			return apperr.Invalid("id", "cannot deactivate your own account")
		case u.Role == models.RoleSuperadmin:
			return apperr.Forbidden("superadmin accounts cannot be deactivated")
		case !u.IsActive:
			return apperr.State("user", "user %d is already inactive", u.ID)
		}
		u.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("user deactivated", zap.Int64("user_id", u.ID))
	return u, nil
}

// Reactivate also clears the failed login counter.
func (s *Service) Reactivate(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	u, err := s.updateUser(ctx, actor, access.ManageAllUsers, id, func(u *models.User) error {
		if u.IsActive {
			return apperr.State("user", "user %d is already active", u.ID)
		}
		u.IsActive = true
		u.FailedLoginAttempts = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("user reactivated", zap.Int64("user_id", u.ID))
	return u, nil
}

// UpdatePermissions replaces the user's permission set; nil restores the
// role defaults.
func (s *Service) UpdatePermissions(ctx context.Context, actor *models.User, id int64, perms []string) (*models.User, error) {
	var fields []apperr.FieldError
	for _, p := range perms {
		if p != access.All && !access.Known(p) {
			fields = append(fields, apperr.FieldError{Field: "permissions", Error: "unknown permission " + p})
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("unknown permissions", fields...)
	}
	u, err := s.updateUser(ctx, actor, access.ManageAllUsers, id, func(u *models.User) error {
		if u.Role == models.RoleSuperadmin {
			return apperr.Forbidden("superadmin permissions are fixed")
		}
		if slices.Contains(perms, access.All) && actor.Role != models.RoleSuperadmin {
			return apperr.Forbidden("only a superadmin may grant every permission")
		}
		u.Permissions = perms
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("permissions updated", zap.Int64("user_id", u.ID), zap.Strings("permissions", perms))
	return u, nil
}

func (s *Service) updateUser(ctx context.Context, actor *models.User, perm access.Permission, id int64, apply func(*models.User) error) (*models.User, error) {
	if err := access.Authorize(actor, perm, nil); err != nil {
		return nil, err
	}
	var u *models.User
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if u, err = tx.LockUser(ctx, id); err != nil {
			return err
		}
		if err := apply(u); err != nil {
			return err
		}
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks login (username or email) and password. Wrong
// passwords are counted on the account; a successful login resets the
// count and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var (
		u       *models.User
		outcome error
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByLogin(ctx, login)
		if errors.Is(err, apperr.ErrNotFound) {
			outcome = ErrInvalidCredentials
			return nil
		}
		if err != nil {
			return err
		}
		if u, err = tx.LockUser(ctx, u.ID); err != nil {
			return err
		}
		if !checkPassword(u.PasswordHash, password) {
			u.FailedLoginAttempts++
			outcome = ErrInvalidCredentials
			return tx.UpdateUser(ctx, u)
		}
		switch {
		case !u.IsActive:
			outcome = ErrAccountDisabled
			return nil
		case !u.IsApproved && u.Role != models.RoleSuperadmin:
			outcome = ErrPendingApproval
			return nil
		}
		now := s.now()
		u.FailedLoginAttempts = 0
		u.LastLogin = &now
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.log)
	if outcome != nil {
		metrics.Logins.WithLabelValues("denied").Inc()
		fields := []zap.Field{zap.String("login", login), zap.Error(outcome)}
		if u != nil {
			fields = append(fields, zap.Int("failed_attempts", u.FailedLoginAttempts))
		}
		log.Info("login denied", fields...)
		return nil, outcome
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	log.Info("login", zap.Int64("user_id", u.ID))
	return u, nil
}

type ChangePasswordInput struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,min=6,max=72"`
}

func (s *Service) ChangePassword(ctx context.Context, actor *models.User, in ChangePasswordInput) error {
	if actor == nil {
		return apperr.Forbidden("not authenticated")
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	hash, err := s.hash(in.New)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if !checkPassword(u.PasswordHash, in.Current) {
			return apperr.Invalid("current_password", "current password is incorrect")
		}
		u.PasswordHash = hash
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Info("password changed", zap.Int64("user_id", actor.ID))
	return nil
}

// GetUser returns a user to themselves, to viewers of their department and
// to user managers.
func (s *Service) GetUser(ctx context.Context, actor *models.User, id int64) (*models.User, error) {
	return store.Read(ctx, s.store, func(tx store.Tx) (*models.User, error) {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if actor != nil && actor.ID == u.ID {
			return u, nil
		}
		if err := access.AuthorizeAny(actor, access.Scope(u.DepartmentID),
			access.ManageAllUsers, access.ViewDepartmentUsers); err != nil {
			return nil, err
		}
		return u, nil
	})
}

// ListUsers narrows f to the actor's department unless they manage all users.
func (s *Service) ListUsers(ctx context.Context, actor *models.User, f models.UserFilter) ([]models.User, error) {
	switch {
	case access.Can(actor, access.ManageAllUsers):
	case access.Allowed(actor, access.ViewDepartmentUsers) && actor.DepartmentID != nil:
		if f.DepartmentID != nil && *f.DepartmentID != *actor.DepartmentID {
			return nil, apperr.Forbidden("%s cannot access department %d", actor.Username, *f.DepartmentID)
		}
		f.DepartmentID = actor.DepartmentID
	default:
		return nil, access.Authorize(actor, access.ManageAllUsers, nil)
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.User, error) {
		return tx.ListUsers(ctx, f)
	})
}

// PendingUsers lists registrations waiting for approval.
func (s *Service) PendingUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	if err := access.Authorize(actor, access.ApproveUsers, nil); err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.User, error) {
		return tx.ListUsers(ctx, models.UserFilter{PendingOnly: true, ActiveOnly: true})
	})
}

func checkDepartment(ctx context.Context, tx store.Tx, id *int64) error {
	if id == nil {
		return nil
	}
	d, err := tx.GetDepartment(ctx, *id)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Invalid("department_id", "department %d does not exist", *id)
	}
	if err != nil {
		return err
	}
	if !d.IsActive {
		return apperr.Invalid("department_id", "department %s is inactive", d.Code)
	}
	return nil
}
