// Package app exposes the tutoring center over a JSON HTTP API.
package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/ctxutil"
	"github.com/Spok95/tutorcenter/internal/export"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/scheduling"
	"github.com/Spok95/tutorcenter/internal/store"
)

// DefaultTokenTTL is how long a login token stays valid.
const DefaultTokenTTL = 12 * time.Hour

// Services are the domain services the API drives.
type Services struct {
	Store      store.Store
	Accounts   *accounts.Service
	Scheduling *scheduling.Service
	Attendance *attendance.Service
	Finance    *finance.Service
	Export     *export.Exporter
}

type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	Location  *time.Location
	Now       func() time.Time
	Logger    *zap.Logger
}

type API struct {
	Services
	jwt     *jwtauth.JWTAuth
	ttl     time.Duration
	uploads *keyedLock
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
}

func New(svc Services, o Options) *API {
	a := &API{
		Services: svc,
		jwt:      jwtauth.New("HS256", []byte(o.JWTSecret), nil),
		ttl:      o.TokenTTL,
		uploads:  newKeyedLock(),
		loc:      o.Location,
		now:      o.Now,
		log:      logging.Named(o.Logger, "http"),
	}
	if a.ttl <= 0 {
		a.ttl = DefaultTokenTTL
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Router builds the chi route tree.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, requestContext, middleware.RealIP, a.observe, middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", a.login)
		r.Post("/auth/register", a.register)
		r.Post("/auth/password-reset", a.requestPasswordReset)
		r.Post("/auth/password-reset/confirm", a.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(a.jwt), a.authenticate)

			r.Get("/me", a.me)
			r.Post("/me/password", a.changePassword)
			r.Get("/permissions/check", a.checkPermission)

			r.Route("/users", a.userRoutes)
			r.Route("/departments", a.departmentRoutes)
			r.Route("/students", a.studentRoutes)
			r.Route("/enrollments", a.enrollmentRoutes)
			r.Route("/sessions", a.sessionRoutes)
			r.Route("/compliance", a.complianceRoutes)
			r.Route("/fees", a.feeRoutes)
			r.Route("/payroll", a.payrollRoutes)
			r.Route("/finance", a.financeRoutes)
			r.Route("/exports", a.exportRoutes)
		})
	})
	return r
}

// requestContext copies chi's request id into the context keys the
// services log with.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(ctxutil.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		d := time.Since(start)
		metrics.ObserveHTTP(r.Method+" "+route, code, d)
		if route != "/metrics" && route != "/healthz" {
			logging.FromContext(r.Context(), a.log).Debug("request",
				zap.String("method", r.Method), zap.String("route", route),
				zap.Int("status", code), zap.Duration("took", d))
		}
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ctxutil.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := a.Store.Ping(ctx); err != nil {
		http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	metrics.ObserveDBPing(time.Since(t0))
	_, _ = w.Write([]byte("ok"))
}
