// Package ratelimiter is a token bucket limiter for public endpoints.
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("ratelimiter: invalid configuration")

// Config is loaded from RATELIMIT_* variables. Capacity 0 disables limiting.
type Config struct {
	Capacity       int           `env:"RATELIMIT_CAPACITY" envDefault:"20"`       // burst size
	RefillRate     int           `env:"RATELIMIT_REFILL_RATE" envDefault:"1"`     // tokens per interval
	RefillInterval time.Duration `env:"RATELIMIT_REFILL_INTERVAL" envDefault:"3s"`
	MaxKeys        int           `env:"RATELIMIT_MAX_KEYS" envDefault:"10000"` // tracked clients
	TrustProxy     bool          `env:"RATELIMIT_TRUST_PROXY" envDefault:"false"`
}

func (c Config) Enabled() bool { return c.Capacity > 0 }

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// fullAfter is how long an idle bucket takes to refill completely.
func (c Config) fullAfter() time.Duration {
	intervals := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(intervals) * c.RefillInterval
}

// Result is the outcome of one Allow call.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (r Result) Allowed() bool { return r.Remaining >= 0 }

// RetryAfter is zero for allowed requests.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state. Consuming 0 tokens only refreshes the bucket.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, n int, cfg Config) (remaining int, resetAt time.Time, err error)
}

// Bucket applies one Config to any number of keys.
type Bucket struct {
	store Store
	cfg   Config
}

func NewBucket(store Store, cfg Config) (*Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return &Bucket{store: store, cfg: cfg}, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, 1, b.cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Limit: b.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}
