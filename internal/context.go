package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	// ContextUserKey carries the authenticated internal user.
	ContextUserKey ctxKey = "user"
	// ContextCounterpartKey carries the validated counterpart session.
	ContextCounterpartKey ctxKey = "counterpart"
	// ContextOriginKey carries the request origin address for audit records.
	ContextOriginKey ctxKey = "origin"
)

func OriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if origin, ok := ctx.Value(ContextOriginKey).(string); ok {
		return origin
	}
	return ""
}

func ContextWithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, ContextOriginKey, origin)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
