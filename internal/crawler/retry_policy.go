package crawler

import "time"

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 10 * time.Second
)

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// FixedRetryPolicy allows a bounded number of attempts separated by a fixed
// delay. It is shared by both metadata adapters.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
	retryable   func(error) bool
}

// NewFixedRetryPolicy builds a policy; non-positive attempts fall back to the
// default and a negative delay to zero.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{
		maxAttempts: maxAttempts,
		delay:       delay,
		retryable:   IsRetryable,
	}
}

// WithPredicate replaces the retryable-error predicate.
func (p *FixedRetryPolicy) WithPredicate(fn func(error) bool) *FixedRetryPolicy {
	cp := *p
	if fn != nil {
		cp.retryable = fn
	}
	return &cp
}

// MaxAttempts is the total number of attempts, including the first one.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	return p.retryable(err)
}

// Backoff returns the wait before the next attempt.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
