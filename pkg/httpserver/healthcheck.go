package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/logger"
)

// Check is a named readiness probe, e.g. a database ping.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthResponse is the JSON body written by the health handlers.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always reports the process as alive.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: "alive"})
	}
}

// ReadinessHandler runs every check with the request context bounded by
// timeout. Any failure yields 503 and names the failing checks.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed",
					slog.String("check", c.Name), logger.Error(err))
				resp.Checks[c.Name] = "fail"
				resp.Status = "not_ready"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		writeHealth(w, code, resp)
	}
}

func writeHealth(w http.ResponseWriter, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
