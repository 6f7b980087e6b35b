package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/ctxutil"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

type actorKey struct{}

func withActor(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, actorKey{}, u)
}

// actor is the user loaded by authenticate; nil on public routes.
func actor(r *http.Request) *models.User {
	u, _ := r.Context().Value(actorKey{}).(*models.User)
	return u
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: msg, Kind: "authentication"})
}

// authenticate resolves the verified token's subject to a live user. The
// user is reloaded on every request so deactivation takes effect at once.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, claims, err := jwtauth.FromContext(ctx)
		if err != nil || token == nil {
			unauthorized(w, "missing or invalid token")
			return
		}
		sub, _ := claims["sub"].(string)
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			unauthorized(w, "invalid token subject")
			return
		}
		u, err := store.Read(ctx, a.Store, func(tx store.Tx) (*models.User, error) {
			return tx.GetUser(ctx, id)
		})
		if errors.Is(err, apperr.ErrNotFound) {
			unauthorized(w, "unknown user")
			return
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if !u.IsActive {
			a.fail(w, r, accounts.ErrAccountDisabled)
			return
		}
		ctx = ctxutil.WithUserID(withActor(ctx, u), u.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.Accounts.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	token, exp, err := a.issue(u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: u})
}

func (a *API) issue(u *models.User) (string, time.Time, error) {
	exp := a.now().Add(a.ttl)
	claims := map[string]any{
		"sub":  strconv.FormatInt(u.ID, 10),
		"role": string(u.Role),
		"exp":  exp.Unix(),
	}
	jwtauth.SetIssuedAt(claims, a.now())
	_, token, err := a.jwt.Encode(claims)
	return token, exp, err
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	u, err := a.Accounts.Register(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := a.Accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in accounts.ResetPasswordInput
	if !decode(w, r, &in) {
		return
	}
	if err := a.Accounts.ResetPassword(r.Context(), in); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actor(r))
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var in accounts.ChangePasswordInput
	if !decode(w, r, &in) {
		return
	}
	if err := a.Accounts.ChangePassword(r.Context(), actor(r), in); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionCheck struct {
	Permission   string `json:"permission"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	Allowed      bool   `json:"allowed"`
}

// checkPermission answers whether the caller holds a permission, in a
// department when one is given.
func (a *API) checkPermission(w http.ResponseWriter, r *http.Request) {
	q := a.query(r)
	res := permissionCheck{Permission: q.str("permission"), DepartmentID: q.id("department_id")}
	if !q.ok(w) {
		return
	}
	if !access.Known(res.Permission) {
		a.fail(w, r, apperr.Invalid("permission", "unknown permission %q", res.Permission))
		return
	}
	res.Allowed = access.CheckPermission(actor(r), res.Permission, res.DepartmentID)
	writeJSON(w, http.StatusOK, res)
}
