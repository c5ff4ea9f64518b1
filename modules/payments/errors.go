package payments

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/handler"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/pkg/validator"
	"github.com/dmitrymomot/bookrent/svc/billing"
)

var (
	errInvalidSignature = handler.NewHTTPError(http.StatusUnauthorized, "invalid_signature")
	errInvalidPayload   = handler.NewHTTPError(http.StatusBadRequest, "invalid_payload")
	errUnknownPlan      = handler.NewHTTPError(http.StatusBadRequest, "unknown_plan")
	errDuplicateRef     = handler.NewHTTPError(http.StatusConflict, "duplicate_reference")
	errInvalidState     = handler.NewHTTPError(http.StatusConflict, "invalid_transition")
	errReferenceBusy    = handler.NewHTTPError(http.StatusServiceUnavailable, "reference_busy")
	errGateway          = handler.NewHTTPError(http.StatusBadGateway, "gateway_error")
	errStatusFilter     = handler.NewHTTPError(http.StatusBadRequest, "invalid_status")
)

// httpError maps pipeline errors onto HTTP errors. Validation failures are
// returned unchanged so their field details reach the client.
func httpError(err error) error {
	var gerr *gateway.GatewayError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, billing.ErrAuthentication):
		return errInvalidSignature
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, subscription.ErrRequestExists):
		return errDuplicateRef
	case errors.Is(err, subscription.ErrPlanNotFound):
		return errUnknownPlan
	case errors.Is(err, billing.ErrValidation):
		return errInvalidPayload
	case errors.Is(err, billing.ErrRequestNotFound):
		return handler.ErrNotFound
	case errors.Is(err, billing.ErrInvalidTransition):
		return errInvalidState
	case errors.Is(err, billing.ErrLockTimeout):
		return errReferenceBusy
	case errors.As(err, &gerr):
		return errGateway
	default:
		return err
	}
}
