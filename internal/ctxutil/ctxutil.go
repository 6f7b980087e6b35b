// Package ctxutil carries request-scoped values (request id, acting user,
// operation name) and the standard timeouts.
package ctxutil

import (
	"context"
	"time"
)

type key int

const (
	keyRequestID key = iota
	keyUserID
	keyOpName
)

// DefaultDBTimeout bounds a single database round trip.
var DefaultDBTimeout = 5 * time.Second

func lookup[T comparable](ctx context.Context, k key) (T, bool) {
	var zero T
	v, ok := ctx.Value(k).(T)
	return v, ok && v != zero
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID is the id chi assigned to the HTTP request, if any.
func RequestID(ctx context.Context) (string, bool) { return lookup[string](ctx, keyRequestID) }

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID is the authenticated user behind the call.
func UserID(ctx context.Context) (int64, bool) { return lookup[int64](ctx, keyUserID) }

// WithOp names the operation, e.g. "job.session_reminders".
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) { return lookup[string](ctx, keyOpName) }

// WithTimeout is context.WithTimeout; d <= 0 only adds cancellation.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout applies DefaultDBTimeout unless the parent expires sooner.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	d := DefaultDBTimeout
	if dl, ok := parent.Deadline(); ok {
		d = min(d, time.Until(dl))
	}
	return context.WithTimeout(parent, d)
}
