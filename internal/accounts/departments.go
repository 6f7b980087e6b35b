package accounts

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type DepartmentInput struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Code        string  `json:"code" validate:"required,deptcode"`
	Description string  `json:"description" validate:"max=1000"`
	FormIDs     []int64 `json:"form_ids"`
}

func (in DepartmentInput) normalize() DepartmentInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// CreateDepartment rejects a name or code already in use with a Conflict
// naming the existing department's code.
func (s *Service) CreateDepartment(ctx context.Context, actor *models.User, in DepartmentInput) (*models.Department, error) {
	if err := access.Authorize(actor, access.ManageDepartments, nil); err != nil {
		return nil, err
	}
	in = in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d := &models.Department{Name: in.Name, Code: in.Code, Description: in.Description, FormIDs: in.FormIDs, IsActive: true}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := uniqueDepartment(ctx, tx, d); err != nil {
			return err
		}
		return tx.CreateDepartment(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("department created", zap.Int64("department_id", d.ID), zap.String("code", d.Code))
	return d, nil
}

func uniqueDepartment(ctx context.Context, tx store.Tx, d *models.Department) error {
	o, err := tx.FindDepartment(ctx, d.Name, d.Code)
	if err != nil {
		return err
	}
	if o != nil && o.ID != d.ID {
		if strings.EqualFold(o.Code, d.Code) {
			return apperr.Conflict("department", o.Code, "department code %s is already used", d.Code)
		}
		return apperr.Conflict("department", o.Code, "department name %q is already used by %s", d.Name, o.Code)
	}
	return nil
}

func (s *Service) UpdateDepartment(ctx context.Context, actor *models.User, id int64, in DepartmentInput) (*models.Department, error) {
	in = in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d, err := s.updateDepartment(ctx, actor, id, func(tx store.Tx, d *models.Department) error {
		d.Name, d.Code, d.Description, d.FormIDs = in.Name, in.Code, in.Description, in.FormIDs
		return uniqueDepartment(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("department updated", zap.Int64("department_id", d.ID))
	return d, nil
}

func (s *Service) DeactivateDepartment(ctx context.Context, actor *models.User, id int64) (*models.Department, error) {
	return s.setDepartmentActive(ctx, actor, id, false)
}

func (s *Service) ReactivateDepartment(ctx context.Context, actor *models.User, id int64) (*models.Department, error) {
	return s.setDepartmentActive(ctx, actor, id, true)
}

func (s *Service) setDepartmentActive(ctx context.Context, actor *models.User, id int64, active bool) (*models.Department, error) {
	d, err := s.updateDepartment(ctx, actor, id, func(_ store.Tx, d *models.Department) error {
		if d.IsActive == active {
			return apperr.State("department", "department %s is already %s", d.Code, activeWord(active))
		}
		d.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("department "+activeWord(active), zap.Int64("department_id", d.ID))
	return d, nil
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func (s *Service) updateDepartment(ctx context.Context, actor *models.User, id int64, apply func(store.Tx, *models.Department) error) (*models.Department, error) {
	if err := access.Authorize(actor, access.ManageDepartments, nil); err != nil {
		return nil, err
	}
	var d *models.Department
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if d, err = tx.GetDepartment(ctx, id); err != nil {
			return err
		}
		if err := apply(tx, d); err != nil {
			return err
		}
		return tx.UpdateDepartment(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDepartment removes a department nobody references any more.
func (s *Service) DeleteDepartment(ctx context.Context, actor *models.User, id int64) error {
	if err := access.Authorize(actor, access.ManageDepartments, nil); err != nil {
		return err
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		d, err := tx.GetDepartment(ctx, id)
		if err != nil {
			return err
		}
		users, err := tx.CountUsers(ctx, models.UserFilter{DepartmentID: &id})
		if err != nil {
			return err
		}
		students, err := tx.CountStudents(ctx, models.StudentFilter{DepartmentID: &id})
		if err != nil {
			return err
		}
		if users > 0 || students > 0 {
			return apperr.State("department", "department %s still has %d users and %d students", d.Code, users, students)
		}
		return tx.DeleteDepartment(ctx, id)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Info("department deleted", zap.Int64("department_id", id))
	return nil
}

// ListDepartments is open to every signed-in user; only department
// managers see inactive ones.
func (s *Service) ListDepartments(ctx context.Context, actor *models.User, includeInactive bool) ([]models.Department, error) {
	if actor == nil {
		return nil, apperr.Forbidden("not authenticated")
	}
	activeOnly := !includeInactive || !access.Can(actor, access.ManageDepartments)
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.Department, error) {
		return tx.ListDepartments(ctx, activeOnly)
	})
}
