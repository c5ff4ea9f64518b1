package payments

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/bookrent/pkg/binder"
	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/handler"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/svc/billing"
)

// maxCallbackSize bounds webhook bodies read for signature verification.
const maxCallbackSize = 64 << 10

// webhook is a plain handler: the signature covers the exact body bytes, so
// the body must not go through a decoder first.
func (s *service) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := handler.NewContext(w, r)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackSize+1))
	if err != nil || len(raw) > maxCallbackSize {
		s.respond(ctx, handler.JSONError(errInvalidPayload))
		return
	}

	outcome, err := s.proc.Handle(ctx, raw, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		herr := httpError(err)
		if status, _ := handler.StatusFor(herr); status >= http.StatusInternalServerError {
			s.log.ErrorContext(ctx, "callback not processed", logger.Error(err))
		}
		s.respond(ctx, handler.JSONError(herr))
		return
	}

	s.log.DebugContext(ctx, "callback acknowledged", logger.Outcome(string(outcome)))
	s.respond(ctx, handler.RawJSON(http.StatusOK, map[string]bool{"success": true}))
}

func (s *service) respond(ctx handler.Context, resp handler.Response) {
	if err := resp.Render(ctx.ResponseWriter(), ctx.Request()); err != nil {
		s.log.ErrorContext(ctx, "response not written", logger.Error(err))
	}
}

// CheckoutRequest is the body of POST /subscriptions.
type CheckoutRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Plan        string `json:"plan"`
	Reference   string `json:"reference,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (s *service) checkoutHandler() http.HandlerFunc {
	return handler.Wrap(s.checkout,
		handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, CheckoutRequest](handler.JSONErrorHandler(s.log)),
	)
}

func (s *service) checkout(ctx handler.Context, req CheckoutRequest) handler.Response {
	res, err := s.orch.Checkout(ctx, billing.CheckoutParams{
		Email:       req.Email,
		Name:        req.Name,
		Phone:       req.Phone,
		Plan:        req.Plan,
		Reference:   req.Reference,
		RedirectURL: req.RedirectURL,
	})
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(res, handler.WithJSONStatus(http.StatusCreated))
}

// RequestStatus is the customer-visible view of a subscription request.
// Admin notes are not exposed.
type RequestStatus struct {
	Reference   string                     `json:"reference"`
	Plan        string                     `json:"plan"`
	Status      subscription.RequestStatus `json:"status"`
	CreatedAt   time.Time                  `json:"createdAt"`
	ProcessedAt *time.Time                 `json:"processedAt,omitempty"`
}

type statusRequest struct {
	ID string `path:"id"`
}

func (s *service) statusHandler() http.HandlerFunc {
	return handler.Wrap(s.status,
		handler.WithBinders[handler.Context, statusRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, statusRequest](handler.JSONErrorHandler(s.log)),
	)
}

func (s *service) status(ctx handler.Context, req statusRequest) handler.Response {
	sr, err := s.store.GetRequest(ctx, req.ID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(RequestStatus{
		Reference:   sr.ID,
		Plan:        sr.Plan,
		Status:      sr.Status,
		CreatedAt:   sr.CreatedAt,
		ProcessedAt: sr.ProcessedAt,
	})
}

type listRequest struct {
	Status string `query:"status"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func (s *service) listHandler() http.HandlerFunc {
	return handler.Wrap(s.list,
		handler.WithBinders[handler.Context, listRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, listRequest](handler.JSONErrorHandler(s.log)),
	)
}

func (s *service) list(ctx handler.Context, req listRequest) handler.Response {
	filter := subscription.ListFilter{
		Status: subscription.RequestStatus(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return handler.JSONError(errStatusFilter)
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return s.fail(ctx, err)
	}
	if items == nil {
		items = []subscription.SubscriptionRequest{}
	}
	return handler.JSON(items, handler.WithJSONMeta(map[string]any{
		"count":  len(items),
		"limit":  req.Limit,
		"offset": filter.Offset,
	}))
}

type cancelRequest struct {
	ID     string `path:"id" json:"-"`
	Reason string `json:"reason"`
}

func (s *service) cancelHandler() http.HandlerFunc {
	return handler.Wrap(s.cancel,
		handler.WithBinders[handler.Context, cancelRequest](binder.Path(chi.URLParam), binder.JSON()),
		handler.WithErrorHandler[handler.Context, cancelRequest](handler.JSONErrorHandler(s.log)),
	)
}

func (s *service) cancel(ctx handler.Context, req cancelRequest) handler.Response {
	sr, err := s.orch.Cancel(ctx, req.ID, adminActor(ctx), req.Reason)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(sr)
}

func (s *service) reloadHandler() http.HandlerFunc {
	return handler.Wrap(s.reload,
		handler.WithErrorHandler[handler.Context, struct{}](handler.JSONErrorHandler(s.log)),
	)
}

func (s *service) reload(ctx handler.Context, _ struct{}) handler.Response {
	plans, err := s.plans.Reload(ctx)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.log.InfoContext(ctx, "plans reloaded", slog.Int("count", len(plans)), logger.Actor(adminActor(ctx)))
	return handler.JSON(plans)
}

// fail maps err and logs it when it is a server-side failure.
func (s *service) fail(ctx handler.Context, err error) handler.Response {
	herr := httpError(err)
	status, _ := handler.StatusFor(herr)
	var gerr *gateway.GatewayError
	switch {
	case errors.As(err, &gerr):
		s.log.WarnContext(ctx, "gateway call failed", logger.Error(err))
	case status >= http.StatusInternalServerError:
		s.log.ErrorContext(ctx, "request failed", logger.Error(err))
	}
	return handler.JSONError(herr)
}
