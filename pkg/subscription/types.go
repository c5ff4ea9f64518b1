package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a SubscriptionRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestCompleted, RequestFailed, RequestCancelled:
		return true
	}
	return false
}

// InvoiceStatus is the local view of a gateway invoice.
type InvoiceStatus string

const (
	InvoiceCreated InvoiceStatus = "created"
	InvoiceSuccess InvoiceStatus = "success"
	InvoiceFailure InvoiceStatus = "failure"
	InvoiceExpired InvoiceStatus = "expired"
)

func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceSuccess || s == InvoiceFailure || s == InvoiceExpired
}

// UserStatus is the state of a UserAccount's entitlement.
type UserStatus string

const (
	UserPending  UserStatus = "pending"
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// SubscriptionRequest is created at checkout and mutated only by the payment
// pipeline and administrative cancellation. It is never deleted.
type SubscriptionRequest struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	Name        string        `json:"name"`
	Phone       string        `json:"phone,omitempty"`
	Plan        string        `json:"plan"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	AdminNotes  string        `json:"admin_notes,omitempty"`
}

// PaymentInvoice mirrors a gateway invoice. InvoiceID is the idempotency key.
type PaymentInvoice struct {
	InvoiceID          string        `json:"invoice_id"`
	Reference          string        `json:"reference"`
	Amount             int64         `json:"amount"` // minor units
	Currency           int           `json:"currency"`
	Status             InvoiceStatus `json:"status"`
	PageURL            string        `json:"page_url,omitempty"`
	RawCallbackPayload []byte        `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// UserAccount holds the entitlement granted by completed subscriptions.
type UserAccount struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	SubscriptionType  string     `json:"subscription_type,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	MaxItems          int        `json:"max_items"`
	Status            UserStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the account grants access at t.
func (u *UserAccount) ActiveAt(t time.Time) bool {
	return u.Status == UserActive && u.SubscriptionEnd != nil && u.SubscriptionEnd.After(t)
}

// SubscriptionUpdate is the full entitlement written on activation.
type SubscriptionUpdate struct {
	Plan     string
	Start    time.Time
	End      time.Time
	MaxItems int
	Status   UserStatus
}

// ListFilter narrows ListRequests. Zero values mean "no constraint";
// Limit defaults to 50.
type ListFilter struct {
	Status    RequestStatus
	OlderThan time.Time
	Limit     int
	Offset    int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 50
	}
	return f.Limit
}

// Note is an audit entry attached to a mutation.
type Note struct {
	Actor string
	Text  string
}

// Format renders the note as a single audit line.
func (n Note) Format(at time.Time) string {
	actor := n.Actor
	if actor == "" {
		actor = "system"
	}
	return fmt.Sprintf("%s [%s] %s", at.UTC().Format(time.RFC3339), actor, strings.TrimSpace(n.Text))
}

// Repeats reports whether the last line of notes already records n's text,
// whichever actor wrote it.
func (n Note) Repeats(notes string) bool {
	text := strings.TrimSpace(n.Text)
	if text == "" || notes == "" {
		return false
	}
	last := notes[strings.LastIndexByte(notes, '\n')+1:]
	return strings.HasSuffix(last, "] "+text)
}

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func appendNote(existing string, n Note, at time.Time) string {
	line := n.Format(at)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
