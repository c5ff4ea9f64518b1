// Package archive keeps verified gateway callback bodies for audit and
// replay diagnosis.
//
// Archiving is best-effort: the webhook pipeline logs archive failures and
// carries on. Objects are keyed by reference so every delivery for one
// order can be listed together.
package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrInvalidConfig = errors.New("archive: invalid configuration")
	ErrAccessDenied  = errors.New("archive: access denied")
	ErrUnavailable   = errors.New("archive: storage unavailable")
	ErrNotFound      = errors.New("archive: object not found")
)

// Entry is one verified callback delivery.
type Entry struct {
	Reference  string
	InvoiceID  string
	Payload    []byte
	ReceivedAt time.Time
}

// Archiver stores and lists callback entries.
type Archiver interface {
	Put(ctx context.Context, e Entry) (key string, err error)
	List(ctx context.Context, reference string) ([]string, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func safe(s string) string {
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

func referencePrefix(prefix, reference string) string {
	return fmt.Sprintf("%s%s/", prefix, safe(reference))
}

// Key is the object key for e under prefix.
func Key(prefix string, e Entry) string {
	return fmt.Sprintf("%s%s_%s.json",
		referencePrefix(prefix, e.Reference),
		e.ReceivedAt.UTC().Format("20060102T150405.000000000Z"),
		safe(e.InvoiceID))
}

// Nop discards entries.
type Nop struct{}

func (Nop) Put(context.Context, Entry) (string, error) { return "", nil }

func (Nop) List(context.Context, string) ([]string, error) { return nil, nil }
