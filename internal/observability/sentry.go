package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/ctxutil"
)

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr reports unexpected failures. Domain errors (validation,
// conflicts and the like) are expected outcomes and are not sent.
func CaptureErr(err error) {
	if err == nil || apperr.IsDomain(err) {
		return
	}
	sentry.CaptureException(err)
}

// CaptureCtx is CaptureErr with the request id and actor attached as tags.
func CaptureCtx(ctx context.Context, err error) {
	if err == nil || apperr.IsDomain(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if id, ok := ctxutil.RequestID(ctx); ok {
			scope.SetTag("request_id", id)
		}
		if op, ok := ctxutil.Op(ctx); ok {
			scope.SetTag("op", op)
		}
		if uid, ok := ctxutil.UserID(ctx); ok {
			scope.SetUser(sentry.User{ID: strconv.FormatInt(uid, 10)})
		}
		sentry.CaptureException(err)
	})
}
