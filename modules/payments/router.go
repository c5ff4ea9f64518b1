// Package payments mounts the HTTP surface of the subscription pipeline:
// the gateway webhook, customer checkout and status, and admin operations.
package payments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/bookrent/pkg/clientip"
	"github.com/dmitrymomot/bookrent/pkg/httpserver"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/ratelimiter"
	"github.com/dmitrymomot/bookrent/pkg/requestid"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/svc/billing"
)

// DefaultRequestTimeout bounds every request except health probes.
const DefaultRequestTimeout = 30 * time.Second

// PlanReloader drops cached plans and reads them again.
type PlanReloader interface {
	Reload(ctx context.Context) ([]subscription.Plan, error)
}

// Options wires the payments module. Store, Orchestrator and Processor are
// required; the rest are optional and their routes are skipped when nil.
type Options struct {
	Store        subscription.Store
	Orchestrator *billing.Orchestrator
	Processor    *billing.Processor
	Plans        PlanReloader

	// AdminToken enables the /admin routes. Empty disables them.
	AdminToken string

	// RateLimit throttles the public checkout and status routes per client
	// IP. Nil disables it.
	RateLimit  *ratelimiter.Bucket
	TrustProxy bool

	Metrics        http.Handler
	Checks         []httpserver.Check
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type service struct {
	store subscription.Store
	orch  *billing.Orchestrator
	proc  *billing.Processor
	plans PlanReloader
	log   *slog.Logger
}

// Router builds the module's chi router.
func Router(opts Options) chi.Router {
	if opts.Store == nil || opts.Orchestrator == nil || opts.Processor == nil {
		panic("payments: store, orchestrator and processor are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	s := &service{
		store: opts.Store,
		orch:  opts.Orchestrator,
		proc:  opts.Processor,
		plans: opts.Plans,
		log:   log.With(logger.Component("payments")),
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(s.log, 5*time.Second, opts.Checks...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Post("/webhooks/gateway", s.webhook)

		r.Group(func(r chi.Router) {
			if opts.RateLimit != nil {
				r.Use(ratelimiter.Middleware(opts.RateLimit, func(req *http.Request) string {
					return clientip.FromRequest(req, opts.TrustProxy)
				}, s.log))
			}
			r.Post("/subscriptions", s.checkoutHandler())
			r.Get("/subscriptions/{id}", s.statusHandler())
		})

		if opts.AdminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(adminAuth(opts.AdminToken, s.log))
				r.Get("/requests", s.listHandler())
				r.Post("/requests/{id}/cancel", s.cancelHandler())
				if s.plans != nil {
					r.Post("/plans/reload", s.reloadHandler())
				}
			})
		}
	})

	return r
}
