// Package redis connects to Redis with retries and exposes a readiness
// check for the HTTP health endpoints.
//
// The client is used by the distributed reference locker. When REDIS_URL is
// empty the service runs without Redis and uses in-process locks instead.
//
//	cfg := config.MustLoad[redis.Config]()
//	if cfg.Enabled() {
//	    client, err := redis.Connect(ctx, cfg)
//	    ...
//	    checks = append(checks, redis.Probe(client))
//	}
package redis
