package util

import (
	"context"
	"time"
)

// Backoff computes the delay to wait after a failed attempt. Attempts are
// numbered from 0.
type Backoff func(attempt int) time.Duration

// ConstantBackoff returns a Backoff that always waits d.
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff returns a Backoff starting at base and doubling on each
// subsequent attempt.
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// Retry calls fn up to maxAttempts times, waiting according to the backoff
// strategy between attempts. It returns nil on the first successful call, or
// the last error if all attempts fail. The function respects context
// cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, backoff Backoff, fn func() error) error {
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}

	return err
}
