package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/observability"
)

const maxBody = 1 << 20

type errorBody struct {
	Error       string              `json:"error"`
	Kind        string              `json:"kind"`
	Entity      string              `json:"entity,omitempty"`
	Fields      []apperr.FieldError `json:"fields,omitempty"`
	Conflicting any                 `json:"conflicting,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusOf maps domain error kinds onto HTTP codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, accounts.ErrAccountDisabled), errors.Is(err, accounts.ErrPendingApproval):
		return http.StatusForbidden
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	body := errorBody{Error: err.Error(), Kind: apperr.KindOf(err).String()}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Error = e.Msg
		body.Entity = e.Entity
		body.Fields = e.Fields
		body.Conflicting = e.Conflicting
	}
	if body.Kind == "unknown" && (code == http.StatusUnauthorized || code == http.StatusForbidden) {
		body.Kind = "authentication"
	}
	if code == http.StatusInternalServerError {
		observability.CaptureCtx(r.Context(), err)
		logging.FromContext(r.Context(), a.log).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		body = errorBody{Error: "internal error", Kind: "internal"}
	}
	writeJSON(w, code, body)
}

// badRequest answers 400 for requests that never reached a service.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "bad_request"})
}

// decode reads a JSON body into v; unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

// query wraps URL query parsing and remembers the first bad parameter.
type query struct {
	r   *http.Request
	loc *time.Location
	err string
}

func (a *API) query(r *http.Request) *query { return &query{r: r, loc: a.loc} }

func (q *query) id(name string) *int64 {
	v := q.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &n
}

func (q *query) num(name string, def int) int {
	v := q.r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.fail(name)
		return def
	}
	return n
}

// date parses YYYY-MM-DD as local midnight.
func (q *query) date(name string) *time.Time {
	v := q.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, q.loc)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &t
}

func (q *query) list(name string) []string { return q.r.URL.Query()[name] }

func (q *query) str(name string) string { return q.r.URL.Query().Get(name) }

func (q *query) flag(name string) bool {
	b, _ := strconv.ParseBool(q.r.URL.Query().Get(name))
	return b
}

func (q *query) fail(name string) {
	if q.err == "" {
		q.err = "invalid query parameter " + name
	}
}

// ok writes a 400 when any parameter failed to parse.
func (q *query) ok(w http.ResponseWriter) bool {
	if q.err != "" {
		badRequest(w, q.err)
		return false
	}
	return true
}
