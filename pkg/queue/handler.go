package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler registers fn under the qualified type name of T.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return &typedHandler[T]{name: qualifiedName(zero), fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

func qualifiedName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}

// NewPeriodicHandler runs fn for tasks of kind. Those tasks carry no
// payload; a Scheduler creates them.
func NewPeriodicHandler(kind string, fn func(ctx context.Context) error) Handler {
	return periodicHandler{kind: kind, fn: fn}
}

type periodicHandler struct {
	kind string
	fn   func(ctx context.Context) error
}

func (h periodicHandler) Name() string { return h.kind }

func (h periodicHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}
