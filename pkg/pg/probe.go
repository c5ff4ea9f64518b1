package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Probe returns a readiness check that acquires a pooled connection and
// pings through it, so an exhausted pool reports unready too.
func Probe(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		defer conn.Release()
		if err := conn.Ping(ctx); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
