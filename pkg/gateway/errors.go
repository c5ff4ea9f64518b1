package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingPrivateKey = errors.New("gateway: private key is required")
	ErrMissingBaseURL    = errors.New("gateway: base URL is required")
	ErrInvalidAmount     = errors.New("gateway: invoice amount must be greater than zero")
	ErrEmptyReference    = errors.New("gateway: invoice reference is required")
	ErrEmptyInvoiceID    = errors.New("gateway: invoice id is required")
	ErrInvalidPayload    = errors.New("gateway: invalid callback payload")
)

// GatewayError is returned by every Client call that reached (or tried to
// reach) the gateway.
//
// A non-2xx response renders as "API Error: {status}" with the response body
// kept in Body. A transport failure renders as the underlying error message,
// unchanged.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error

	transport bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API Error: %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "gateway error"
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsRetryable reports whether repeating the same call may succeed:
// transport failures, timeouts, 5xx and 429. Other 4xx and malformed
// responses are terminal. Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return false
	}
	switch {
	case gerr.StatusCode == http.StatusTooManyRequests:
		return true
	case gerr.StatusCode >= http.StatusInternalServerError:
		return true
	case gerr.StatusCode != 0:
		return false
	}
	return gerr.transport
}
