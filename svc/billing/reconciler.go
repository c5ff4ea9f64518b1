package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/queue"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

// ReconcilerConfig controls the stale-request sweep.
type ReconcilerConfig struct {
	Interval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"` // 0 disables the periodic sweep
	StaleAfter time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"15m"`
	Batch      int           `env:"RECONCILE_BATCH" envDefault:"100"`
	Attempts   int           `env:"RECONCILE_ATTEMPTS" envDefault:"3"`
}

// StatusChecker is the part of the gateway client the reconciler polls.
type StatusChecker interface {
	CheckStatus(ctx context.Context, invoiceID string) (*gateway.InvoiceStatus, error)
}

// ReconcileObserver records sweep results. *metrics.Metrics implements it.
type ReconcileObserver interface {
	ObserveReconcile(checked, resolved, failed int)
}

// Report summarizes one sweep.
type Report struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Reconciler resolves pending requests whose callback never arrived.
type Reconciler struct {
	store    subscription.Store
	checker  StatusChecker
	proc     *Processor
	cfg      ReconcilerConfig
	backoff  gateway.Backoff
	observer ReconcileObserver
	log      *slog.Logger
	now      func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the sweep logger. A nil logger is ignored.
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithReconcileObserver reports the counts of every sweep.
func WithReconcileObserver(obs ReconcileObserver) ReconcilerOption {
	return func(r *Reconciler) { r.observer = obs }
}

// WithReconcilerBackoff sets the pause between status check attempts.
func WithReconcilerBackoff(b gateway.Backoff) ReconcilerOption {
	return func(r *Reconciler) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithReconcilerClock replaces time.Now when picking stale requests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler panics on nil dependencies.
func NewReconciler(store subscription.Store, checker StatusChecker, proc *Processor, cfg ReconcilerConfig, opts ...ReconcilerOption) *Reconciler {
	if store == nil || checker == nil || proc == nil {
		panic("billing: reconciler requires store, status checker and processor")
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	r := &Reconciler{
		store:   store,
		checker: checker,
		proc:    proc,
		cfg:     cfg,
		backoff: gateway.DefaultBackoff(),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("reconciler"))
	return r
}

// Run checks one batch of stale pending requests against the gateway.
// Per-request failures are counted and logged; only a failure to list the
// batch is returned.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var rep Report
	reqs, err := r.store.ListRequests(ctx, subscription.ListFilter{
		Status:    subscription.RequestPending,
		OlderThan: r.now().Add(-r.cfg.StaleAfter),
		Limit:     r.cfg.Batch,
	})
	if err != nil {
		return rep, storeErr(err)
	}

	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		switch outcome, err := r.reconcile(ctx, req); {
		case errors.Is(err, subscription.ErrInvoiceNotFound):
			rep.Skipped++
		case err != nil:
			rep.Failed++
		default:
			rep.Checked++
			if outcome == OutcomeActivated || outcome == OutcomeFailed {
				rep.Resolved++
			}
		}
	}

	if r.observer != nil {
		r.observer.ObserveReconcile(rep.Checked, rep.Resolved, rep.Failed)
	}
	if len(reqs) > 0 {
		r.log.InfoContext(ctx, "reconcile sweep finished",
			slog.Int("checked", rep.Checked),
			slog.Int("resolved", rep.Resolved),
			slog.Int("failed", rep.Failed),
			slog.Int("skipped", rep.Skipped))
	}
	return rep, ctx.Err()
}

func (r *Reconciler) reconcile(ctx context.Context, req subscription.SubscriptionRequest) (Outcome, error) {
	log := r.log.With(logger.Reference(req.ID))

	inv, err := r.store.GetInvoiceByReference(ctx, req.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrInvoiceNotFound) {
			log.WarnContext(ctx, "pending request has no invoice")
		} else {
			log.ErrorContext(ctx, "invoice lookup failed", logger.Error(err))
		}
		return "", err
	}

	var st *gateway.InvoiceStatus
	err = gateway.Retry(ctx, r.backoff, r.cfg.Attempts, func(ctx context.Context) error {
		var err error
		st, err = r.checker.CheckStatus(ctx, inv.InvoiceID)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "invoice status check failed", logger.InvoiceID(inv.InvoiceID), logger.Error(err))
		return "", err
	}

	if st.InvoiceID == "" {
		st.InvoiceID = inv.InvoiceID
	}
	if st.Reference == "" {
		st.Reference = req.ID
	}
	if st.Reference != req.ID {
		log.ErrorContext(ctx, "gateway returned a different reference", slog.String("gateway_reference", st.Reference))
		return "", ErrValidation
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return r.proc.Apply(ctx, st, raw, ActorReconciler)
}

// ReconcileTaskKind names the periodic queue task that runs one sweep.
const ReconcileTaskKind = "billing.reconcile"

// Handler runs one sweep per periodic task claimed by a queue worker.
func (r *Reconciler) Handler() queue.Handler {
	return queue.NewPeriodicHandler(ReconcileTaskKind, func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	})
}

// Schedule registers the sweep every Interval. A zero interval leaves the
// scheduler untouched.
func (r *Reconciler) Schedule(s *queue.Scheduler) error {
	if r.cfg.Interval <= 0 {
		r.log.Info("periodic reconciliation disabled")
		return nil
	}
	return s.Add(ReconcileTaskKind, queue.Every(r.cfg.Interval))
}
