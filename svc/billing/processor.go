package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/archive"
	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/locker"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

// Outcome classifies a handled callback. Every outcome is acknowledged to
// the gateway with 200.
type Outcome string

const (
	OutcomeActivated        Outcome = "activated"
	OutcomeFailed           Outcome = "failed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeIgnored          Outcome = "ignored"
)

// Processor applies gateway invoice updates to subscription requests.
type Processor struct {
	store    subscription.Store
	orch     *Orchestrator
	secret   string
	locker   locker.Locker
	archive  archive.Archiver
	observer CallbackObserver
	log      *slog.Logger
	now      func() time.Time
}

// NewProcessor panics on a nil store or orchestrator. An empty secret is
// allowed and rejects every callback.
func NewProcessor(store subscription.Store, orch *Orchestrator, secret string, opts ...ProcessorOption) *Processor {
	if store == nil || orch == nil {
		panic("billing: processor requires store and orchestrator")
	}
	p := &Processor{
		store:   store,
		orch:    orch,
		secret:  secret,
		archive: archive.Nop{},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logger.Component("webhook"))
	return p
}

// Handle verifies, parses and applies one webhook delivery.
//
// It returns ErrAuthentication for a bad signature and ErrValidation for a
// malformed body; neither touches state. Store failures wrap ErrStore and
// leave the request pending so a redelivery can succeed.
func (p *Processor) Handle(ctx context.Context, raw []byte, signature string) (Outcome, error) {
	start := p.now()
	outcome, err := p.handle(ctx, raw, signature)
	p.observe(outcome, err, p.now().Sub(start))
	return outcome, err
}

func (p *Processor) handle(ctx context.Context, raw []byte, signature string) (Outcome, error) {
	if !gateway.Verify(raw, signature, p.secret) {
		p.log.WarnContext(ctx, "callback signature rejected", slog.Int("body_size", len(raw)))
		return "", ErrAuthentication
	}

	cb, err := gateway.ParseCallback(raw)
	if err != nil {
		p.log.WarnContext(ctx, "callback payload rejected", logger.Error(err))
		return "", errors.Join(ErrValidation, err)
	}

	p.archiveCallback(ctx, cb, raw)
	return p.apply(ctx, cb, raw, ActorWebhook)
}

// Apply runs the state machine for an invoice status that was already
// authenticated, e.g. one fetched from the gateway by the reconciler.
func (p *Processor) Apply(ctx context.Context, st *gateway.InvoiceStatus, raw []byte, actor string) (Outcome, error) {
	if st == nil || st.Reference == "" || !st.Status.Valid() {
		return "", ErrValidation
	}
	return p.apply(ctx, st, raw, actor)
}

func (p *Processor) apply(ctx context.Context, cb *gateway.InvoiceStatus, raw []byte, actor string) (Outcome, error) {
	log := p.log.With(
		logger.Reference(cb.Reference),
		logger.InvoiceID(cb.InvoiceID),
		logger.Status(string(cb.Status)),
		logger.Actor(actor),
	)

	if p.locker != nil {
		lock, err := p.locker.Lock(ctx, locker.ReferenceKey(cb.Reference))
		if err != nil {
			log.ErrorContext(ctx, "reference lock not obtained", logger.Error(err))
			return "", errors.Join(ErrStore, ErrLockTimeout, err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WarnContext(ctx, "reference lock release failed", logger.Error(err))
			}
		}()
	}

	req, err := p.store.GetRequest(ctx, cb.Reference)
	if errors.Is(err, subscription.ErrRequestNotFound) {
		log.WarnContext(ctx, "callback for unknown reference")
		return OutcomeUnknownReference, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "request lookup failed", logger.Error(err))
		return "", storeErr(err)
	}

	if subscription.IsTerminal(req.Status) {
		log.InfoContext(ctx, "duplicate callback suppressed", slog.String("request_status", string(req.Status)))
		return OutcomeDuplicate, nil
	}

	switch cb.Status {
	case gateway.StatusSuccess:
		return p.activate(ctx, log, req, cb, raw, actor)
	case gateway.StatusFailure, gateway.StatusExpired, gateway.StatusReversed:
		return p.fail(ctx, log, req, cb, raw, actor)
	default:
		log.DebugContext(ctx, "non-final invoice status acknowledged")
		return OutcomeIgnored, nil
	}
}

func (p *Processor) activate(ctx context.Context, log *slog.Logger, req *subscription.SubscriptionRequest, cb *gateway.InvoiceStatus, raw []byte, actor string) (Outcome, error) {
	note := subscription.Note{
		Actor: actor,
		Text:  fmt.Sprintf("payment %s succeeded: amount=%d ccy=%d", cb.InvoiceID, cb.Amount, cb.Currency),
	}
	if mismatch := p.amountMismatch(ctx, cb); mismatch != "" {
		log.WarnContext(ctx, "callback amount differs from invoice", slog.String("detail", mismatch))
		note.Text += "; " + mismatch
	}

	var user *subscription.UserAccount
	err := p.store.WithinTx(ctx, func(tx subscription.Store) error {
		applied, err := tx.MarkCompleted(ctx, req.ID, note)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		if _, err := tx.RecordInvoiceCallback(ctx, p.invoiceCallback(cb, raw)); err != nil {
			return err
		}
		user, err = p.orch.Activate(ctx, tx, req)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, errLostRace), errors.Is(err, subscription.ErrInvalidTransition):
		log.InfoContext(ctx, "duplicate callback suppressed after concurrent transition")
		return OutcomeDuplicate, nil
	case errors.Is(err, ErrValidation):
		log.ErrorContext(ctx, "activation impossible, request left pending", logger.Error(err))
		note := subscription.Note{Actor: actor, Text: "activation failed: " + err.Error()}
		if !note.Repeats(req.AdminNotes) {
			p.appendNote(ctx, log, req.ID, note)
		}
		return "", err
	default:
		log.ErrorContext(ctx, "activation failed, request left pending", logger.Error(err))
		return "", storeErr(err)
	}

	log.InfoContext(ctx, "subscription activated",
		logger.UserID(user.ID),
		slog.String("plan", user.SubscriptionType),
		slog.Time("subscription_end", *user.SubscriptionEnd))
	p.orch.NotifyActivated(ctx, user, req)
	return OutcomeActivated, nil
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, req *subscription.SubscriptionRequest, cb *gateway.InvoiceStatus, raw []byte, actor string) (Outcome, error) {
	text := fmt.Sprintf("payment %s %s", cb.InvoiceID, cb.Status)
	if cb.FailureCause != "" {
		text += ": " + cb.FailureCause
	}

	err := p.store.WithinTx(ctx, func(tx subscription.Store) error {
		applied, err := tx.MarkFailed(ctx, req.ID, subscription.Note{Actor: actor, Text: text})
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		_, err = tx.RecordInvoiceCallback(ctx, p.invoiceCallback(cb, raw))
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, errLostRace), errors.Is(err, subscription.ErrInvalidTransition):
		log.InfoContext(ctx, "duplicate callback suppressed after concurrent transition")
		return OutcomeDuplicate, nil
	default:
		log.ErrorContext(ctx, "failure not recorded, request left pending", logger.Error(err))
		return "", storeErr(err)
	}

	log.InfoContext(ctx, "subscription request failed")
	p.orch.NotifyFailed(ctx, req)
	return OutcomeFailed, nil
}

// amountMismatch compares the callback with the locally recorded invoice.
// A mismatch is noted but does not block activation.
func (p *Processor) amountMismatch(ctx context.Context, cb *gateway.InvoiceStatus) string {
	inv, err := p.store.GetInvoiceByReference(ctx, cb.Reference)
	if err != nil || inv.InvoiceID != cb.InvoiceID {
		return ""
	}
	if inv.Amount == cb.Amount && (cb.Currency == 0 || inv.Currency == cb.Currency) {
		return ""
	}
	return fmt.Sprintf("expected amount=%d ccy=%d", inv.Amount, inv.Currency)
}

func (p *Processor) invoiceCallback(cb *gateway.InvoiceStatus, raw []byte) subscription.InvoiceCallback {
	return subscription.InvoiceCallback{
		InvoiceID:  cb.InvoiceID,
		Reference:  cb.Reference,
		Amount:     cb.Amount,
		Currency:   cb.Currency,
		Status:     invoiceStatus(cb.Status),
		RawPayload: raw,
		ReceivedAt: p.now().UTC(),
	}
}

func invoiceStatus(s gateway.Status) subscription.InvoiceStatus {
	switch s {
	case gateway.StatusSuccess:
		return subscription.InvoiceSuccess
	case gateway.StatusExpired:
		return subscription.InvoiceExpired
	case gateway.StatusFailure, gateway.StatusReversed:
		return subscription.InvoiceFailure
	}
	return subscription.InvoiceCreated
}

func (p *Processor) appendNote(ctx context.Context, log *slog.Logger, id string, note subscription.Note) {
	if err := p.store.AppendNote(ctx, id, note); err != nil {
		log.WarnContext(ctx, "audit note not saved", logger.Error(err))
	}
}

func (p *Processor) archiveCallback(ctx context.Context, cb *gateway.InvoiceStatus, raw []byte) {
	key, err := p.archive.Put(ctx, archive.Entry{
		Reference:  cb.Reference,
		InvoiceID:  cb.InvoiceID,
		Payload:    raw,
		ReceivedAt: p.now().UTC(),
	})
	if err != nil {
		p.log.WarnContext(ctx, "callback not archived",
			logger.Reference(cb.Reference), logger.Error(err))
		return
	}
	if key != "" {
		p.log.DebugContext(ctx, "callback archived", slog.String("key", key))
	}
}

func (p *Processor) observe(outcome Outcome, err error, d time.Duration) {
	if p.observer == nil {
		return
	}
	label := string(outcome)
	switch {
	case errors.Is(err, ErrAuthentication):
		label = "unauthorized"
	case errors.Is(err, ErrValidation):
		label = "invalid"
	case err != nil:
		label = "error"
	}
	p.observer.ObserveCallback(label, d)
}
