package crawler

import (
	"context"
	"fmt"
	"time"
)

// RetryHook observes a failed attempt that is about to be repeated.
type RetryHook func(attempt int, err error)

// Retry runs fn until it succeeds, the policy gives up, or ctx ends. Soft
// misses are returned as they are, together with fn's value.
func Retry[T any](ctx context.Context, policy RetryPolicy, onRetry RetryHook, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || IsSoftMiss(err) {
			return v, err
		}
		if !policy.ShouldRetry(err, attempt) {
			return zero, fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if werr := sleep(ctx, policy.Backoff(attempt)); werr != nil {
			return zero, fmt.Errorf("retry wait: %w", werr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
