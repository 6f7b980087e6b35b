package app

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/scheduling"
)

func (a *API) userRoutes(r chi.Router) {
	r.Get("/", a.listUsers)
	r.Post("/", a.createUser)
	r.Get("/pending", a.pendingUsers)
	r.Get("/{id}", a.getUser)
	r.Post("/{id}/approve", a.userAction(a.Accounts.Approve))
	r.Post("/{id}/reject", a.rejectUser)
	r.Post("/{id}/deactivate", a.userAction(a.Accounts.Deactivate))
	r.Post("/{id}/reactivate", a.userAction(a.Accounts.Reactivate))
	r.Put("/{id}/permissions", a.updatePermissions)
	r.Get("/{id}/availability", a.getAvailability)
	r.Put("/{id}/availability", a.setAvailability)
	r.Get("/{id}/availability/check", a.checkAvailability)
}

func (a *API) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	slots, err := a.Scheduling.GetAvailability(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) setAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in []scheduling.AvailabilityInput
	if !decode(w, r, &in) {
		return
	}
	slots, err := a.Scheduling.SetAvailability(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) checkAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := a.query(r)
	free, err := a.Scheduling.IsAvailableAt(r.Context(), actor(r), id, q.str("day"), q.str("start"), q.str("end"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": free})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.UserFilter{
		Role:         models.Role(q.str("role")),
		DepartmentID: q.id("department_id"),
		ActiveOnly:   q.flag("active"),
	}
	if !q.ok(w) {
		return
	}
	users, err := a.Accounts.ListUsers(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var in accounts.CreateUserInput
	if !decode(w, r, &in) {
		return
	}
	u, err := a.Accounts.CreateUser(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) pendingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Accounts.PendingUsers(r.Context(), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := a.Accounts.GetUser(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type userOp func(ctx context.Context, actor *models.User, id int64) (*models.User, error)

// userAction adapts the account operations that only need a user id.
func (a *API) userAction(op userOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		u, err := op(r.Context(), actor(r), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (a *API) rejectUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := a.Accounts.Reject(r.Context(), actor(r), id, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updatePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := a.Accounts.UpdatePermissions(r.Context(), actor(r), id, req.Permissions)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) departmentRoutes(r chi.Router) {
	r.Get("/", a.listDepartments)
	r.Post("/", a.createDepartment)
	r.Put("/{id}", a.updateDepartment)
	r.Post("/{id}/deactivate", a.departmentAction(a.Accounts.DeactivateDepartment))
	r.Post("/{id}/reactivate", a.departmentAction(a.Accounts.ReactivateDepartment))
	r.Delete("/{id}", a.deleteDepartment)
}

func (a *API) listDepartments(w http.ResponseWriter, r *http.Request) {
	ds, err := a.Accounts.ListDepartments(r.Context(), actor(r), a.query(r).flag("include_inactive"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (a *API) createDepartment(w http.ResponseWriter, r *http.Request) {
	var in accounts.DepartmentInput
	if !decode(w, r, &in) {
		return
	}
	d, err := a.Accounts.CreateDepartment(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in accounts.DepartmentInput
	if !decode(w, r, &in) {
		return
	}
	d, err := a.Accounts.UpdateDepartment(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) departmentAction(op func(context.Context, *models.User, int64) (*models.Department, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		d, err := op(r.Context(), actor(r), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (a *API) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.Accounts.DeleteDepartment(r.Context(), actor(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) studentRoutes(r chi.Router) {
	r.Get("/", a.listStudents)
	r.Post("/", a.createStudent)
	r.Get("/{id}", a.getStudent)
	r.Put("/{id}", a.updateStudent)
	r.Post("/{id}/deactivate", a.deactivateStudent)
}

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	f := models.StudentFilter{DepartmentID: q.id("department_id"), Status: models.StudentStatus(q.str("status"))}
	if !q.ok(w) {
		return
	}
	ss, err := a.Accounts.ListStudents(r.Context(), actor(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

func (a *API) createStudent(w http.ResponseWriter, r *http.Request) {
	var in accounts.StudentInput
	if !decode(w, r, &in) {
		return
	}
	st, err := a.Accounts.CreateStudent(r.Context(), actor(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) getStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := a.Accounts.GetStudent(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) updateStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in accounts.StudentInput
	if !decode(w, r, &in) {
		return
	}
	st, err := a.Accounts.UpdateStudent(r.Context(), actor(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) deactivateStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := a.Accounts.DeactivateStudent(r.Context(), actor(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
