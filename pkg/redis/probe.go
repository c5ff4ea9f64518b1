package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL   = errors.New("redis: REDIS_URL is empty")
	ErrInvalidURL = errors.New("redis: invalid connection URL")
	ErrNotReady   = errors.New("redis: server not ready")
	ErrUnhealthy  = errors.New("redis: ping failed")
)

// Probe returns a readiness check for the health endpoint. A reply other
// than PONG counts as unhealthy.
func Probe(client redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		if pong != "PONG" {
			return fmt.Errorf("%w: unexpected reply %q", ErrUnhealthy, pong)
		}
		return nil
	}
}
