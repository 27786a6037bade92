package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"stock-dashboard/internal/logger"
)

// RetryPolicy bounds how often a transient failure is retried. The loop is
// kept apart from the request itself so callers decide what counts as
// transient and tests can replace Sleep.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// Retryable reports whether err is worth another attempt. Nil uses
	// IsTransient.
	Retryable func(error) bool

	// Sleep waits between attempts. Nil uses SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns default retry configuration
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		logger.Warn(ctx, "Request failed, retrying", "attempt", attempt, "maxAttempts", attempts, "error", lastErr, "wait", p.Delay)
		if err := sleep(ctx, p.Delay); err != nil {
			return fmt.Errorf("retry aborted: %w", errors.Join(err, lastErr))
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// IsTransient treats transport failures and 5xx/429 responses as transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
