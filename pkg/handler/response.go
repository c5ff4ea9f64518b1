package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/requestid"
	"github.com/dmitrymomot/bookrent/pkg/validator"
)

// JSONResponse is the envelope of every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Details   map[string][]string `json:"details,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(status *int, body *JSONResponse)

// WithJSONStatus overrides the status code.
func WithJSONStatus(status int) JSONOption {
	return func(s *int, _ *JSONResponse) { *s = status }
}

// WithJSONMeta attaches metadata such as pagination.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(_ *int, b *JSONResponse) { b.Meta = meta }
}

// JSON wraps v in the data envelope with status 200.
func JSON(v any, opts ...JSONOption) Response {
	status, body := http.StatusOK, JSONResponse{Data: v}
	for _, opt := range opts {
		opt(&status, &body)
	}
	return jsonResponse{status: status, body: body}
}

// RawJSON renders v as-is, without the envelope.
func RawJSON(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// JSONError renders err in the error envelope. The status comes from
// StatusFor unless overridden.
func JSONError(err error, opts ...JSONOption) Response {
	status, key := StatusFor(err)
	detail := &ErrorDetail{Code: key, Message: key}
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		detail.Message = "validation failed"
		detail.Details = ve.Map()
	} else if status < http.StatusInternalServerError {
		detail.Message = err.Error()
	}

	body := JSONResponse{Error: detail}
	for _, opt := range opts {
		opt(&status, &body)
	}
	return jsonResponse{status: status, body: body}
}

// JSONErrorHandler renders binder and render failures as JSON and logs
// server errors.
func JSONErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = logger.Discard()
	}
	return func(ctx Context, err error) {
		w, r := ctx.ResponseWriter(), ctx.Request()
		status, _ := StatusFor(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				logger.Error(err))
		}
		resp := JSONError(err, func(_ *int, b *JSONResponse) {
			b.Error.RequestID = requestid.FromContext(ctx)
		})
		if rerr := resp.Render(w, r); rerr != nil {
			log.ErrorContext(ctx, "error response not written", logger.Error(rerr))
		}
	}
}

type emptyResponse struct{ status int }

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty responds with a status and no body.
func Empty(status int) Response {
	return emptyResponse{status: status}
}
