// Package locker provides short-lived mutual exclusion keyed by string.
//
// Memory serializes callers inside one process. Redis extends the same
// guarantee across instances with SET NX PX and an owner token, so a lock
// that expired and was taken by someone else is never released by the
// previous holder.
package locker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotObtained = errors.New("locker: lock not obtained")
	ErrNotHeld     = errors.New("locker: lock not held")
)

// Locker acquires a lock for key, waiting until it is free, the context is
// done or the configured wait budget runs out (ErrNotObtained).
type Locker interface {
	Lock(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lock. Release is idempotent from the caller's side;
// releasing an expired lock returns ErrNotHeld.
type Lock interface {
	Release(ctx context.Context) error
}

type Config struct {
	TTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	WaitTimeout  time.Duration `env:"LOCK_WAIT_TIMEOUT" envDefault:"10s"`
	PollInterval time.Duration `env:"LOCK_POLL_INTERVAL" envDefault:"50ms"`
	Prefix       string        `env:"LOCK_PREFIX" envDefault:"bookrent:lock:"`
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	return c
}

// acquire polls try until it succeeds or the wait budget is spent.
func acquire(ctx context.Context, cfg Config, try func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrNotObtained, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReferenceKey is the lock key guarding webhook processing for a payment
// reference.
func ReferenceKey(reference string) string {
	return "ref:" + reference
}
