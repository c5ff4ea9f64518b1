package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Server. Invalid values panic at construction, since
// they are programming errors in wiring code.
type Option func(*settings)

func mustPositive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("httpserver: %s must be positive, got %v", name, d))
	}
}

func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty listen address")
	}
	return func(c *settings) { c.listen = addr }
}

func WithReadTimeout(d time.Duration) Option {
	mustPositive("read timeout", d)
	return func(c *settings) { c.limits.read = d }
}

func WithWriteTimeout(d time.Duration) Option {
	mustPositive("write timeout", d)
	return func(c *settings) { c.limits.write = d }
}

func WithIdleTimeout(d time.Duration) Option {
	mustPositive("idle timeout", d)
	return func(c *settings) { c.limits.idle = d }
}

// WithShutdownTimeout bounds graceful shutdown; in-flight webhook handlers
// get this long to commit.
func WithShutdownTimeout(d time.Duration) Option {
	mustPositive("shutdown timeout", d)
	return func(c *settings) { c.limits.drain = d }
}

// WithServer supplies a preconfigured http.Server. Fields it already sets
// win over the option values.
func WithServer(srv *http.Server) Option {
	if srv == nil {
		panic("httpserver: nil *http.Server")
	}
	return func(c *settings) { c.base = srv }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *settings) { c.log = l }
}

// WithStartHook runs h once the listener is bound.
func WithStartHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: nil start hook")
	}
	return func(c *settings) { c.onStart = append(c.onStart, h) }
}

// WithStopHook runs h after shutdown completes.
func WithStopHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: nil stop hook")
	}
	return func(c *settings) { c.onStop = append(c.onStop, h) }
}
