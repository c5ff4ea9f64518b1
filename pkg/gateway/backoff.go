package gateway

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff returns the pause before retry n (1-based).
type Backoff func(n int) time.Duration

// Exponential doubles base on every retry up to ceiling. jitter spreads each
// pause by ±jitter of its value.
func Exponential(base, ceiling time.Duration, jitter float64) Backoff {
	return func(n int) time.Duration {
		if n <= 0 {
			return 0
		}
		d := base
		for i := 1; i < n && d < ceiling; i++ {
			d *= 2
		}
		if jitter > 0 {
			d = time.Duration(float64(d) * (1 + jitter*(2*rand.Float64()-1)))
		}
		return min(d, ceiling)
	}
}

// Constant waits d between every retry.
func Constant(d time.Duration) Backoff {
	return func(n int) time.Duration {
		if n <= 0 {
			return 0
		}
		return d
	}
}

// DefaultBackoff keeps total retry time well under the request deadline.
func DefaultBackoff() Backoff {
	return Exponential(500*time.Millisecond, 5*time.Second, 0.1)
}

// Retry calls fn up to attempts times while it fails with a retryable error
// (see IsRetryable). The last error is returned unchanged; if ctx ends while
// waiting, ctx.Err() is returned instead.
func Retry(ctx context.Context, backoff Backoff, attempts int, fn func(context.Context) error) error {
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	for n := 1; ; n++ {
		err := fn(ctx)
		if err == nil || n >= attempts || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(n)):
		}
	}
}
