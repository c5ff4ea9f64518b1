package redis

import "time"

// Config describes the Redis connection. An empty URL means Redis is not
// used and callers fall back to in-process implementations.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // e.g. "redis://:password@localhost:6379/0"
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // connection attempts before giving up
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`   // pause between attempts
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"15s"` // overall budget for Connect
}

func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
