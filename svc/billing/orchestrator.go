package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/locker"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/notify"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/pkg/validator"
)

// PlanResolver looks plans up by id. *subscription.Catalog implements it.
type PlanResolver interface {
	Plan(ctx context.Context, id string) (subscription.Plan, error)
}

// InvoiceCreator is the part of the gateway client used at checkout.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, p gateway.InvoiceParams) (*gateway.Invoice, error)
}

// CheckoutParams is a customer's subscription order.
type CheckoutParams struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Plan        string `json:"plan"`
	Reference   string `json:"reference,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (p CheckoutParams) validate() error {
	return validator.Apply(
		validator.Required("email", p.Email),
		validator.Optional(p.Email, validator.ValidEmail("email", p.Email)),
		validator.Required("name", p.Name),
		validator.MaxLen("name", p.Name, 200),
		validator.Optional(p.Phone, validator.ValidPhone("phone", p.Phone)),
		validator.Required("plan", p.Plan),
		validator.Optional(p.Reference, validator.ValidIdentifier("reference", p.Reference, 64)),
		validator.Optional(p.RedirectURL, validator.ValidURL("redirect_url", p.RedirectURL)),
	)
}

// CheckoutResult tells the client where to pay.
type CheckoutResult struct {
	Reference string `json:"reference"`
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

// Orchestrator owns the subscription side of a payment: checkout, account
// activation and cancellation.
type Orchestrator struct {
	store        subscription.Store
	plans        PlanResolver
	gateway      InvoiceCreator
	notify       notify.Dispatcher
	locker       locker.Locker
	log          *slog.Logger
	backoff      gateway.Backoff
	attempts     int
	now          func() time.Time
	newReference func() string
}

// NewOrchestrator panics on nil dependencies.
func NewOrchestrator(store subscription.Store, plans PlanResolver, gw InvoiceCreator, opts ...OrchestratorOption) *Orchestrator {
	if store == nil || plans == nil || gw == nil {
		panic("billing: orchestrator requires store, plans and gateway")
	}
	o := &Orchestrator{
		store:        store,
		plans:        plans,
		gateway:      gw,
		notify:       notify.Nop{},
		log:          slog.Default(),
		backoff:      gateway.DefaultBackoff(),
		attempts:     3,
		now:          time.Now,
		newReference: func() string { return "order-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(logger.Component("orchestrator"))
	return o
}

// Checkout creates a gateway invoice for the plan and records a pending
// request with its invoice. Gateway failures are returned as
// *gateway.GatewayError after retries are exhausted.
func (o *Orchestrator) Checkout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	p.Email = subscription.NormalizeEmail(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	if err := p.validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}
	plan, err := o.plans.Plan(ctx, p.Plan)
	if err != nil {
		if errors.Is(err, subscription.ErrPlanNotFound) {
			return nil, errors.Join(ErrValidation, err)
		}
		return nil, err
	}

	ref := p.Reference
	if ref == "" {
		ref = o.newReference()
	}
	log := o.log.With(logger.Reference(ref))

	var inv *gateway.Invoice
	err = gateway.Retry(ctx, o.backoff, o.attempts, func(ctx context.Context) error {
		var err error
		inv, err = o.gateway.CreateInvoice(ctx, gateway.InvoiceParams{
			Amount:      plan.AmountMinor(),
			Currency:    plan.Currency,
			Description: fmt.Sprintf("Subscription %s", plan.Name),
			Reference:   ref,
			RedirectURL: p.RedirectURL,
		})
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "invoice creation failed", logger.Error(err))
		return nil, err
	}

	now := o.now().UTC()
	err = o.store.WithinTx(ctx, func(tx subscription.Store) error {
		req := &subscription.SubscriptionRequest{
			ID:        ref,
			Email:     p.Email,
			Name:      p.Name,
			Phone:     p.Phone,
			Plan:      plan.ID,
			Status:    subscription.RequestPending,
			CreatedAt: now,
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		return tx.SaveInvoice(ctx, &subscription.PaymentInvoice{
			InvoiceID: inv.InvoiceID,
			Reference: ref,
			Amount:    plan.AmountMinor(),
			Currency:  plan.Currency,
			Status:    subscription.InvoiceCreated,
			PageURL:   inv.PageURL,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		if errors.Is(err, subscription.ErrRequestExists) {
			return nil, errors.Join(ErrValidation, err)
		}
		log.ErrorContext(ctx, "checkout not persisted", logger.InvoiceID(inv.InvoiceID), logger.Error(err))
		return nil, storeErr(err)
	}

	log.InfoContext(ctx, "checkout created",
		logger.InvoiceID(inv.InvoiceID),
		slog.String("plan", plan.ID),
		slog.Int64("amount", plan.AmountMinor()))
	return &CheckoutResult{Reference: ref, InvoiceID: inv.InvoiceID, PageURL: inv.PageURL}, nil
}

// Activate grants the request's plan to the account with the request's
// email, creating the account when missing. It writes through store, which
// is the caller's transaction, so the entitlement commits together with the
// request's transition to completed.
func (o *Orchestrator) Activate(ctx context.Context, store subscription.Store, req *subscription.SubscriptionRequest) (*subscription.UserAccount, error) {
	plan, err := o.plans.Plan(ctx, req.Plan)
	if err != nil {
		if errors.Is(err, subscription.ErrPlanNotFound) {
			return nil, errors.Join(ErrValidation, fmt.Errorf("plan %q: %w", req.Plan, err))
		}
		return nil, err
	}

	user, err := o.findOrCreateUser(ctx, store, req)
	if err != nil {
		return nil, err
	}

	start, end := subscription.Renew(o.now(), user, plan)
	upd := subscription.SubscriptionUpdate{
		Plan:     plan.ID,
		Start:    start,
		End:      end,
		MaxItems: plan.MaxItems,
		Status:   subscription.UserActive,
	}
	if err := store.UpdateUserSubscription(ctx, user.ID, upd); err != nil {
		return nil, err
	}

	user.SubscriptionType = upd.Plan
	user.SubscriptionStart = &start
	user.SubscriptionEnd = &end
	user.MaxItems = upd.MaxItems
	user.Status = upd.Status
	return user, nil
}

func (o *Orchestrator) findOrCreateUser(ctx context.Context, store subscription.Store, req *subscription.SubscriptionRequest) (*subscription.UserAccount, error) {
	user, err := store.FindUserByEmail(ctx, req.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, subscription.ErrUserNotFound) {
		return nil, err
	}

	user, err = store.CreateUser(ctx, &subscription.UserAccount{
		Email:  req.Email,
		Name:   req.Name,
		Phone:  req.Phone,
		Status: subscription.UserPending,
	})
	if errors.Is(err, subscription.ErrUserExists) {
		return store.FindUserByEmail(ctx, req.Email)
	}
	return user, err
}

// NotifyActivated queues the activation email. Failures are logged only.
func (o *Orchestrator) NotifyActivated(ctx context.Context, user *subscription.UserAccount, req *subscription.SubscriptionRequest) {
	data := map[string]any{
		"name":      user.Name,
		"reference": req.ID,
		"max_items": user.MaxItems,
		"plan_name": req.Plan,
	}
	if plan, err := o.plans.Plan(ctx, req.Plan); err == nil {
		data["plan_name"] = plan.Name
	}
	if user.SubscriptionEnd != nil {
		data["subscription_end"] = user.SubscriptionEnd.Format(time.DateOnly)
	}
	o.dispatch(ctx, notify.Message{Template: notify.SubscriptionActivated, To: user.Email, Data: data})
}

// NotifyFailed queues the payment failure email. Failures are logged only.
func (o *Orchestrator) NotifyFailed(ctx context.Context, req *subscription.SubscriptionRequest) {
	o.dispatch(ctx, notify.Message{
		Template: notify.PaymentFailed,
		To:       req.Email,
		Data:     map[string]any{"name": req.Name, "reference": req.ID},
	})
}

func (o *Orchestrator) dispatch(ctx context.Context, msg notify.Message) {
	if err := o.notify.Dispatch(context.WithoutCancel(ctx), msg); err != nil {
		o.log.WarnContext(ctx, "notification not queued",
			slog.String("template", msg.Template), logger.Error(err))
	}
}

// Cancel moves a pending request to cancelled. Cancelling an already
// cancelled request is a no-op; any other terminal state yields
// ErrInvalidTransition.
func (o *Orchestrator) Cancel(ctx context.Context, id, actor, reason string) (*subscription.SubscriptionRequest, error) {
	if o.locker != nil {
		lock, err := o.locker.Lock(ctx, locker.ReferenceKey(id))
		if err != nil {
			return nil, errors.Join(ErrLockTimeout, err)
		}
		defer o.release(ctx, lock)
	}

	text := "cancelled"
	if reason = strings.TrimSpace(reason); reason != "" {
		text += ": " + reason
	}
	applied, err := o.store.MarkCancelled(ctx, id, subscription.Note{Actor: actor, Text: text})
	if err != nil {
		if errors.Is(err, subscription.ErrRequestNotFound) || errors.Is(err, subscription.ErrInvalidTransition) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	req, err := o.store.GetRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if applied {
		o.log.InfoContext(ctx, "subscription request cancelled", logger.Reference(id), logger.Actor(actor))
	}
	return req, nil
}

func (o *Orchestrator) release(ctx context.Context, lock locker.Lock) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		o.log.WarnContext(ctx, "lock release failed", logger.Error(err))
	}
}
