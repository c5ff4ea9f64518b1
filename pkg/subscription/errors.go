package subscription

import "errors"

var (
	// ErrStore marks persistence failures. Callers treat it as transient.
	ErrStore = errors.New("subscription store failure")

	ErrRequestNotFound   = errors.New("subscription request not found")
	ErrRequestExists     = errors.New("subscription request already exists")
	ErrInvalidTransition = errors.New("invalid subscription request transition")
	ErrInvalidRequest    = errors.New("invalid subscription request")

	ErrUserNotFound = errors.New("user account not found")
	ErrUserExists   = errors.New("user account already exists")

	ErrInvoiceNotFound = errors.New("payment invoice not found")
	ErrInvoiceExists   = errors.New("payment invoice already exists")

	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")
)
