// Package notify hands customer notifications to a background queue.
//
// Dispatch never sends anything itself: it enqueues a Message and returns.
// The queue worker renders the template and delivers it through an
// email.Sender, retrying on failure. Callers treat Dispatch errors as
// log-and-continue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/bookrent/pkg/queue"
)

// Template names.
const (
	SubscriptionActivated = "subscription_activated"
	PaymentFailed         = "payment_failed"
)

var (
	ErrUnknownTemplate = errors.New("notify: unknown template")
	ErrNoRecipient     = errors.New("notify: recipient is required")
)

// Message is the queued notification payload.
type Message struct {
	Template string         `json:"template"`
	To       string         `json:"to"`
	Data     map[string]any `json:"data,omitempty"`
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if !isKnown(m.Template) {
		return fmt.Errorf("%w: %q", ErrUnknownTemplate, m.Template)
	}
	return nil
}

// Dispatcher accepts notifications for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// QueueDispatcher enqueues messages on the notifications queue.
type QueueDispatcher struct {
	q enqueuer
}

func NewQueueDispatcher(q enqueuer) *QueueDispatcher {
	if q == nil {
		panic("notify: nil enqueuer")
	}
	return &QueueDispatcher{q: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	return d.q.Enqueue(ctx, msg)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Dispatch(context.Context, Message) error { return nil }
