package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// NewContextWithLogger returns a context carrying log for code further down
// the call chain.
func NewContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger carried by ctx. Contexts without one get a
// no-op logger, so call sites need no nil checks.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
