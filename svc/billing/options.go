package billing

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/archive"
	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/locker"
	"github.com/dmitrymomot/bookrent/pkg/notify"
)

// Actors recorded in audit notes.
const (
	ActorWebhook    = "webhook"
	ActorReconciler = "reconciler"
	ActorCheckout   = "checkout"
)

// AdminActor names an administrator in audit notes.
func AdminActor(id string) string {
	if id == "" {
		return "admin"
	}
	return "admin:" + id
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the orchestrator logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDispatcher sends activation and failure emails through d. Without
// one, notifications are dropped.
func WithDispatcher(d notify.Dispatcher) OrchestratorOption {
	return func(o *Orchestrator) {
		if d != nil {
			o.notify = d
		}
	}
}

// WithLocker makes Cancel take the same per-reference lock as callbacks.
func WithLocker(l locker.Locker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

// WithRetry sets how invoice creation is retried on transient gateway errors.
func WithRetry(strategy gateway.Backoff, attempts int) OrchestratorOption {
	return func(o *Orchestrator) {
		if strategy != nil {
			o.backoff = strategy
		}
		if attempts > 0 {
			o.attempts = attempts
		}
	}
}

// WithClock replaces time.Now for subscription windows and audit notes.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithReferenceGenerator overrides the order-<uuid> reference format.
func WithReferenceGenerator(gen func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newReference = gen
		}
	}
}

// CallbackObserver records processed callbacks. *metrics.Metrics implements it.
type CallbackObserver interface {
	ObserveCallback(outcome string, d time.Duration)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the callback processor logger. A nil logger is
// ignored.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithReferenceLocker serializes callbacks per reference across instances.
func WithReferenceLocker(l locker.Locker) ProcessorOption {
	return func(p *Processor) { p.locker = l }
}

// WithArchive stores every verified callback body.
func WithArchive(a archive.Archiver) ProcessorOption {
	return func(p *Processor) {
		if a != nil {
			p.archive = a
		}
	}
}

// WithCallbackObserver reports every handled callback with its outcome and
// duration.
func WithCallbackObserver(obs CallbackObserver) ProcessorOption {
	return func(p *Processor) { p.observer = obs }
}

// WithProcessorClock replaces time.Now for callback timestamps and latency.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}
