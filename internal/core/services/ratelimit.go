package services

import (
	"context"
	"fmt"
	"time"

	"github.com/brasaforge/forge/internal/core/ports"
)

// ErrRateLimited is returned when a fixed window is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, try again in %s", e.RetryAfter)
}

// RateLimitResult reports the remaining budget of the current window.
type RateLimitResult struct {
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed-window counter on the command store: INCR the
// window key, set its expiry on first hit, reject once the count passes
// the limit.
type RateLimiter struct {
	store  ports.CommandStore
	prefix string
	now    func() time.Time
}

func NewRateLimiter(store ports.CommandStore, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "rate:"
	}
	return &RateLimiter{store: store, prefix: prefix, now: time.Now}
}

// Allow consumes one unit of the window for key, returning a RateLimitError
// once limit is exceeded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	if window <= 0 {
		window = time.Minute
	}

	storeKey := r.prefix + key
	count, err := r.store.Incr(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to bump rate counter: %w", err)
	}

	if count == 1 {
		if err := r.store.Expire(ctx, storeKey, window); err != nil {
			return nil, fmt.Errorf("failed to set rate window expiry: %w", err)
		}
	}

	if count > int64(limit) {
		return nil, &RateLimitError{RetryAfter: window}
	}

	return &RateLimitResult{
		Remaining: limit - int(count),
		ResetAt:   r.now().Add(window),
	}, nil
}
