package util

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces upstream provider requests to a per-minute ceiling. The
// refresh loop calls Wait before each symbol's fetch; requests are released
// one at a time with no burst, which keeps a long batch from front-loading
// its quota.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perMinute operations per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// Wait blocks until the next operation may proceed or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
