package locker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance using the same Redis.
type Redis struct {
	client redis.Cmdable
	cfg    Config
}

// NewRedis panics on a nil client.
func NewRedis(client redis.Cmdable, cfg Config) *Redis {
	if client == nil {
		panic("locker: nil redis client")
	}
	return &Redis{client: client, cfg: cfg.withDefaults()}
}

func (r *Redis) Lock(ctx context.Context, key string) (Lock, error) {
	key = r.cfg.Prefix + key
	token := uuid.NewString()
	err := acquire(ctx, r.cfg, func(ctx context.Context) (bool, error) {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &redisLock{client: r.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.Cmdable
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
