package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds catalog reads and writes.
	DefaultTimeout = 10 * time.Second

	// LongTimeout bounds one upload: extraction plus every embedding and upsert.
	LongTimeout = 5 * time.Minute

	// ShortTimeout bounds cache lookups.
	ShortTimeout = 2 * time.Second
)

func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// Detached keeps the values of parent (trace span, request id) but not its
// cancellation, for best-effort writes that should outlive the request.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
