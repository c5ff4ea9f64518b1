package gateway

import (
	"log/slog"
	"net/http"
	"time"
)

// Observer receives one call per gateway request.
// outcome is "ok", "http_error" or "transport_error".
type Observer interface {
	ObserveGatewayCall(op, outcome string, d time.Duration)
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}
