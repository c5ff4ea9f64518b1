// Package handler turns typed request handlers into http.HandlerFunc values.
//
// A handler receives a Context and a request struct populated by binders,
// and returns a Response that renders itself:
//
//	r.Post("/subscriptions", handler.Wrap(svc.checkout,
//		handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, CheckoutRequest](handler.JSONErrorHandler(log)),
//	))
package handler

import (
	"net/http"
)

// HandlerFunc handles a bound request of type R within context C.
type HandlerFunc[C Context, R any] func(ctx C, req R) Response

// Response renders itself to an http.ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind parses an HTTP request into v.
type Bind func(r *http.Request, v any) error

// ErrorHandler handles errors from binding or rendering.
type ErrorHandler[C Context] func(ctx C, err error)

// Decorator wraps a HandlerFunc. The first decorator passed to
// WithDecorators is the outermost.
type Decorator[C Context, R any] func(HandlerFunc[C, R]) HandlerFunc[C, R]

// WrapOption configures Wrap.
type WrapOption[C Context, R any] func(*wrapConfig[C, R])

type wrapConfig[C Context, R any] struct {
	binders        []Bind
	errorHandler   ErrorHandler[C]
	contextFactory func(http.ResponseWriter, *http.Request) C
	decorators     []Decorator[C, R]
}

// WithBinders appends binders applied in order before the handler runs.
func WithBinders[C Context, R any](binders ...Bind) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		for _, b := range binders {
			if b != nil {
				c.binders = append(c.binders, b)
			}
		}
	}
}

// WithErrorHandler replaces the plain-text default error handler.
func WithErrorHandler[C Context, R any](h ErrorHandler[C]) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// WithContextFactory sets a custom context factory. Required when C is not
// the default Context.
func WithContextFactory[C Context, R any](f func(http.ResponseWriter, *http.Request) C) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		if f != nil {
			c.contextFactory = f
		}
	}
}

// WithDecorators adds decorators around the handler.
func WithDecorators[C Context, R any](decorators ...Decorator[C, R]) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		c.decorators = append(c.decorators, decorators...)
	}
}

func defaultErrorHandler[C Context](ctx C, err error) {
	status, key := StatusFor(err)
	http.Error(ctx.ResponseWriter(), key, status)
}

// Wrap converts a typed HandlerFunc to http.HandlerFunc.
func Wrap[C Context, R any](h HandlerFunc[C, R], opts ...WrapOption[C, R]) http.HandlerFunc {
	cfg := &wrapConfig[C, R]{
		errorHandler: defaultErrorHandler[C],
		contextFactory: func(w http.ResponseWriter, r *http.Request) C {
			if c, ok := NewContext(w, r).(C); ok {
				return c
			}
			panic("handler: custom context type requires WithContextFactory")
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	final := h
	for i := len(cfg.decorators) - 1; i >= 0; i-- {
		final = cfg.decorators[i](final)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := cfg.contextFactory(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.errorHandler(ctx, err)
				return
			}
		}

		resp := final(ctx, req)
		if resp == nil {
			cfg.errorHandler(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(ctx, err)
		}
	}
}
