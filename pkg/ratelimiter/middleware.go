package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/handler"
	"github.com/dmitrymomot/bookrent/pkg/logger"
)

// KeyFunc extracts the limiting key, usually the client IP. An empty key
// bypasses the limiter.
type KeyFunc func(r *http.Request) string

// Middleware limits requests per key and sets X-RateLimit-* headers.
// Store failures let the request through.
func Middleware(b *Bucket, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := b.Allow(r.Context(), k)
			if err != nil {
				log.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				retry := int(res.RetryAfter(time.Now()).Round(time.Second).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				log.InfoContext(r.Context(), "rate limited", slog.String("key", k), slog.String("path", r.URL.Path))
				_ = handler.JSONError(handler.ErrTooManyRequests).Render(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
