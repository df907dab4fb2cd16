// Package ratelimit implements fixed-window request counting backed by an
// atomic counter store.
package ratelimit

import (
	"context"
	"time"

	"github.com/tracklight/tracklight/internal/cache"
)

const (
	// DefaultLimit is the per-window request budget when none is configured.
	DefaultLimit = 120
	// DefaultWindow is the counting window.
	DefaultWindow = 60 * time.Second
)

// Limiter counts requests per scope in discrete, non-sliding windows.
type Limiter struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter. Non-positive limit or window fall back to defaults.
func New(c cache.Cache, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{cache: c, limit: limit, window: window, now: time.Now}
}

// Limit returns the configured per-window budget.
func (l *Limiter) Limit() int { return l.limit }

// Check increments the counter for scope in the current window and reports
// whether the call is within budget. On counter-store errors the request is
// allowed and the error is returned to the caller.
func (l *Limiter) Check(ctx context.Context, scope string) (allowed bool, remaining int, err error) {
	windowSecs := int64(l.window / time.Second)
	window := l.now().Unix() / windowSecs
	key := cache.RateKey(scope, window)

	count, err := l.cache.IncrWindow(ctx, key, l.window)
	if err != nil {
		return true, l.limit, err
	}

	remaining = l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(l.limit), remaining, nil
}
