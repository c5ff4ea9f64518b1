package pg

import "time"

type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL"`                            // empty selects the in-memory store
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // pool size
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // connections kept warm
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // pool health check cadence
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // idle connection lifetime
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // absolute connection lifetime

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s"`

	// EnsureSchema creates the service tables on startup when they are missing.
	EnsureSchema bool `env:"PG_ENSURE_SCHEMA" envDefault:"true"`
}

func (c Config) Enabled() bool {
	return c.ConnectionString != ""
}
