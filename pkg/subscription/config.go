package subscription

import "time"

type Config struct {
	PlansFile     string        `env:"PLANS_FILE"`
	PlansCacheTTL time.Duration `env:"PLANS_CACHE_TTL" envDefault:"5m"`
}
