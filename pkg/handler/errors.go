package handler

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/bookrent/pkg/binder"
	"github.com/dmitrymomot/bookrent/pkg/validator"
)

// ErrNilResponse is reported when a handler returns no Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with an HTTP status code and a stable machine key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string { return e.Key }

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

var (
	ErrBadRequest           = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized         = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrForbidden            = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound             = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict             = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnsupportedMediaType = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}
	ErrTooManyRequests      = HTTPError{Code: http.StatusTooManyRequests, Key: "too_many_requests"}
	ErrInternalServerError  = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrBadGateway           = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable   = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// StatusFor classifies err into a status code and key. Binder and
// validation failures are client errors; anything unknown is a 500.
func StatusFor(err error) (int, string) {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, httpErr.Key
	case validator.IsValidationError(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return http.StatusUnsupportedMediaType, ErrUnsupportedMediaType.Key
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath):
		return http.StatusBadRequest, ErrBadRequest.Key
	default:
		return http.StatusInternalServerError, ErrInternalServerError.Key
	}
}
