package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/binder"
	"github.com/dmitrymomot/bookrent/pkg/handler"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/requestid"
	"github.com/dmitrymomot/bookrent/pkg/validator"
)

type greetRequest struct {
	Name string `json:"name"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	greet := func(_ handler.Context, req greetRequest) handler.Response {
		if req.Name == "" {
			return handler.JSONError(validator.Apply(validator.Required("name", req.Name)))
		}
		return handler.JSON(map[string]string{"greeting": "hello " + req.Name}, handler.WithJSONStatus(http.StatusCreated))
	}
	h := handler.Wrap(greet,
		handler.WithBinders[handler.Context, greetRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, greetRequest](handler.JSONErrorHandler(logger.Discard())),
	)

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ann"}`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		body := decode(t, rec)
		assert.Equal(t, map[string]any{"greeting": "hello ann"}, body.Data)
		assert.Nil(t, body.Error)
	})

	t.Run("validation error", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Contains(t, body.Error.Details, "name")
	})

	t.Run("binder error", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		r.Header.Set("Content-Type", "text/plain")
		r = r.WithContext(requestid.WithContext(r.Context(), "req-1"))
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		body := decode(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "req-1", body.Error.RequestID)
	})
}

func TestWrapDefaults(t *testing.T) {
	t.Parallel()

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response { return nil })
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response { return nil },
			handler.WithBinders[handler.Context, struct{}](func(*http.Request, any) error { return handler.ErrNotFound }),
		)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found\n", rec.Body.String())
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, struct{}] {
			return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
				return func(ctx handler.Context, req struct{}) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response { return handler.Empty(http.StatusNoContent) },
			handler.WithDecorators(mark("outer"), mark("inner")),
		)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err    error
		status int
	}{
		"http error":    {errors.Join(errors.New("ctx"), handler.ErrConflict), http.StatusConflict},
		"validation":    {validator.Apply(validator.Required("x", "")), http.StatusBadRequest},
		"bad json":      {binder.ErrFailedToParseJSON, http.StatusBadRequest},
		"bad query":     {binder.ErrFailedToParseQuery, http.StatusBadRequest},
		"media type":    {binder.ErrMissingContentType, http.StatusUnsupportedMediaType},
		"unknown error": {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			status, _ := handler.StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestJSONErrorHidesServerErrors(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, handler.JSONError(errors.New("dsn=postgres://secret")).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}
