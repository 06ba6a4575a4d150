// Package ratelimit bounds operations per key within fixed time windows.
//
// Windows are fixed rather than rolling: a client can in the worst case issue
// up to 2x the limit across a window boundary. That is an accepted tradeoff
// for O(1) bookkeeping per key.
package ratelimit

import (
	"context"
	"time"
)

// Decision reports the outcome of one rate-limit check.
type Decision struct {
	Allowed       bool
	Remaining     int
	ResetTime     time.Time
	TotalRequests int
}

// Store counts requests per key within the active window. The in-memory
// implementation is single-process only; multi-instance deployments inject
// the Redis store instead.
type Store interface {
	// Incr increments the key's counter, starting a fresh window when the
	// previous one has passed. It returns the new count and the window end.
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetTime time.Time, err error)
}

// Limiter applies fixed-window limits through an injected store.
type Limiter struct {
	store Store
}

// New constructs a limiter over the given store.
func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Check counts one request against the key's window and reports whether it is
// within maxRequests.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, maxRequests int) (Decision, error) {
	count, resetTime, err := l.store.Incr(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}
	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:       count <= maxRequests,
		Remaining:     remaining,
		ResetTime:     resetTime,
		TotalRequests: count,
	}, nil
}
