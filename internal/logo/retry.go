package logo

import (
	"context"
	"time"
)

// RetryPolicy drives the retry-with-growing-timeout loop shared by the
// source fetchers: a fixed number of attempts where each attempt gets a
// longer per-attempt timeout rather than a backoff sleep.
type RetryPolicy struct {
	MaxAttempts int
	BaseTimeout time.Duration
	// Growth is the per-attempt timeout increase as a fraction of
	// BaseTimeout. 0.5 yields base, base*1.5, base*2.0, ...
	Growth float64
}

// DefaultRetryPolicy matches the website fetcher's historical ladder:
// three attempts at 10s, 15s and 20s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseTimeout: 10 * time.Second,
		Growth:      0.5,
	}
}

// AttemptTimeout returns the per-attempt timeout for a zero-based attempt.
func (p RetryPolicy) AttemptTimeout(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	extra := time.Duration(float64(p.BaseTimeout) * p.Growth * float64(attempt))
	return p.BaseTimeout + extra
}

// ShouldRetry decides whether another attempt is warranted after a failure.
// Per-attempt deadlines expiring is exactly what the growing timeout ladder
// exists for, so timeouts are retryable; the caller's own cancellation is
// final.
func (p RetryPolicy) ShouldRetry(ctx context.Context, attempt int) bool {
	if attempt+1 >= p.MaxAttempts {
		return false
	}
	return ctx.Err() == nil
}
