package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Spok95/tutorcenter/internal/ctxutil"
)

type Log struct {
	Base   *zap.Logger
	Sugar  *zap.SugaredLogger
	Level  zap.AtomicLevel
	Closer func()
}

// Init builds the process logger: JSON in prod, console otherwise. An
// unknown level falls back to info.
func Init(level, env string) (*Log, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(env, "prod") {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	cfg.InitialFields = map[string]any{"app": "tutorcenter"}
	enc := &cfg.EncoderConfig
	enc.TimeKey, enc.EncodeTime = "ts", zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Log{
		Base:   base,
		Sugar:  base.Sugar(),
		Level:  lvl,
		Closer: func() { _ = base.Sync() },
	}, nil
}

// Named returns l scoped to a component, or a no-op logger when l is nil.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(component)
}

// FromContext adds the request id, acting user and operation carried by ctx.
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	var fields []zap.Field
	if id, ok := ctxutil.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if uid, ok := ctxutil.UserID(ctx); ok {
		fields = append(fields, zap.Int64("actor_id", uid))
	}
	if op, ok := ctxutil.Op(ctx); ok {
		fields = append(fields, zap.String("op", op))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
