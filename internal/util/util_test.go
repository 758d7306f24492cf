package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, ConstantBackoff(0), func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, ConstantBackoff(0), func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, 5, ConstantBackoff(time.Hour), func() error {
		attempts++
		return errors.New("transient error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times before cancellation, want 1", attempts)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := b(i); got != w {
			t.Errorf("ExponentialBackoff(1s)(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(2 * time.Second)
	for i := 0; i < 4; i++ {
		if got := b(i); got != 2*time.Second {
			t.Errorf("ConstantBackoff(2s)(%d) = %v, want 2s", i, got)
		}
	}
}

func TestRateLimiterWaitPacing(t *testing.T) {
	// 1200 per minute = one token every 50ms.
	rl := NewRateLimiter(1200)

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}

	// The first token is available immediately; the remaining three must be
	// spaced out by the replenish interval.
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Errorf("4 waits finished in %v, want at least 120ms of pacing", elapsed)
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1) // one token per minute

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("Wait should fail when the context expires before the next token")
	}
}
