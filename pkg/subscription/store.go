package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the only write path for subscription requests, invoices and user
// accounts. Implementations must make the Mark* transitions atomic
// compare-and-set operations on the request status.
type Store interface {
	GetRequest(ctx context.Context, id string) (*SubscriptionRequest, error)
	CreateRequest(ctx context.Context, req *SubscriptionRequest) error
	ListRequests(ctx context.Context, filter ListFilter) ([]SubscriptionRequest, error)

	// MarkCompleted moves a pending request to completed. It returns false
	// with a nil error when the request is already completed, and
	// ErrInvalidTransition when it reached another terminal state.
	MarkCompleted(ctx context.Context, id string, note Note) (bool, error)
	MarkFailed(ctx context.Context, id string, note Note) (bool, error)
	MarkCancelled(ctx context.Context, id string, note Note) (bool, error)
	AppendNote(ctx context.Context, id string, note Note) error

	// FindUserByEmail called inside WithinTx holds the account until the
	// transaction ends, so read-modify-write renewals do not interleave.
	FindUserByEmail(ctx context.Context, email string) (*UserAccount, error)
	// CreateUser returns ErrUserExists when the email is taken.
	CreateUser(ctx context.Context, user *UserAccount) (*UserAccount, error)
	UpdateUserSubscription(ctx context.Context, userID uuid.UUID, upd SubscriptionUpdate) error

	SaveInvoice(ctx context.Context, inv *PaymentInvoice) error
	// RecordInvoiceCallback stores the callback outcome unless the invoice
	// already reached a terminal status. Unknown invoices are inserted.
	RecordInvoiceCallback(ctx context.Context, cb InvoiceCallback) (bool, error)
	GetInvoiceByReference(ctx context.Context, reference string) (*PaymentInvoice, error)

	// WithinTx runs fn against a Store whose writes commit together when fn
	// returns nil and are discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// InvoiceCallback is what the payment pipeline learns about an invoice from
// a gateway callback or status poll.
type InvoiceCallback struct {
	InvoiceID  string
	Reference  string
	Amount     int64
	Currency   int
	Status     InvoiceStatus
	RawPayload []byte
	ReceivedAt time.Time
}

// Clock supplies the current time to stores.
type Clock func() time.Time

// StoreOption configures MemoryStore and PostgresStore.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now Clock
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now Clock) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
