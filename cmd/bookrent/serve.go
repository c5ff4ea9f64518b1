package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/bookrent/modules/payments"
	"github.com/dmitrymomot/bookrent/pkg/httpserver"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/ratelimiter"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, notification worker and reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if a.cfg.AdminToken == "" {
		a.log.Warn("ADMIN_TOKEN is empty, admin routes are disabled")
	}

	var limit *ratelimiter.Bucket
	if a.cfg.RateLimit.Enabled() {
		var err error
		limit, err = ratelimiter.NewBucket(ratelimiter.NewMemoryStore(a.cfg.RateLimit, nil), a.cfg.RateLimit)
		if err != nil {
			return err
		}
	}

	r := chi.NewRouter()
	r.Mount("/", payments.Router(payments.Options{
		Store:        a.store,
		Orchestrator: a.orch,
		Processor:    a.proc,
		Plans:        a.catalog,
		AdminToken:   a.cfg.AdminToken,
		RateLimit:    limit,
		TrustProxy:   a.cfg.RateLimit.TrustProxy,
		Metrics:      a.metricsHandler(),
		Checks:       a.checks,
		Logger:       a.log,
	}))

	srv := httpserver.NewFromConfig(a.cfg.HTTP, httpserver.WithLogger(a.log.With(logger.Component("http"))))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, r) })
	g.Go(a.worker.Run(ctx))
	if len(a.sched.Kinds()) > 0 {
		g.Go(a.sched.Run(ctx))
	}

	err := g.Wait()
	a.log.Info("bookrent stopped", logger.Error(err))
	return err
}
