// Package ratelimit limits request rates per caller key.
//
// MemoryLimiter keeps one token bucket per key in process memory, which is
// enough for a single tracelens instance. The Limiter interface is the
// contract a shared implementation would satisfy.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed bool

	// RetryAfter is how long until a token is available. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one token for key. An error signals a limiter
	// malfunction; callers fail open.
	Allow(ctx context.Context, key string) (Result, error)

	// Close releases background resources.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(context.Context, string) (Result, error) { return Result{Allowed: true}, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
