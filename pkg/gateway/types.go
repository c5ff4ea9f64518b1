package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the invoice status reported by the gateway.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusHold       Status = "hold"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
	StatusReversed   Status = "reversed"
	StatusExpired    Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusHold, StatusSuccess,
		StatusFailure, StatusReversed, StatusExpired:
		return true
	}
	return false
}

// Final reports whether the gateway will not change the status again
// without a new payment attempt.
func (s Status) Final() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusReversed, StatusExpired:
		return true
	}
	return false
}

// InvoiceParams describes an invoice to create. Amount is in minor units.
// Currency falls back to the client's configured currency when zero, and the
// URLs fall back to the configured redirect/callback URLs when empty.
type InvoiceParams struct {
	Amount      int64
	Currency    int
	Description string
	Reference   string
	RedirectURL string
	CallbackURL string
}

// Invoice is the gateway's answer to invoice creation.
type Invoice struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

// InvoiceStatus is both the status-check response and the webhook body.
type InvoiceStatus struct {
	InvoiceID    string   `json:"invoiceId"`
	Status       Status   `json:"status"`
	Amount       int64    `json:"amount"`
	Currency     int      `json:"ccy"`
	Reference    string   `json:"reference"`
	FailureCause string   `json:"failureReason,omitempty"`
	CreatedDate  UnixTime `json:"createdDate"`
	ModifiedDate UnixTime `json:"modifiedDate"`
}

// ParseCallback decodes a webhook body. Unknown fields are ignored; a body
// without invoiceId or reference, or with an unknown status, is rejected with
// ErrInvalidPayload.
func ParseCallback(raw []byte) (*InvoiceStatus, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	var cb InvoiceStatus
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if cb.InvoiceID == "" {
		return nil, fmt.Errorf("%w: invoiceId is missing", ErrInvalidPayload)
	}
	if cb.Reference == "" {
		return nil, fmt.Errorf("%w: reference is missing", ErrInvalidPayload)
	}
	if !cb.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, cb.Status)
	}
	if cb.Amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidPayload)
	}
	return &cb, nil
}

// UnixTime is an epoch-seconds timestamp. It accepts a JSON number or a
// numeric string and encodes as a number.
type UnixTime struct{ time.Time }

func (t *UnixTime) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid epoch timestamp %q", s)
	}
	if sec == 0 {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.Unix(sec, 0).UTC()
	return nil
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}
