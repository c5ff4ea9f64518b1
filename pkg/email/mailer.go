// Package email sends transactional email through Postmark, or writes it to
// disk during local development.
package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Sender delivers a rendered email.
type Sender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func (p SendEmailParams) Validate() error {
	switch {
	case strings.TrimSpace(p.SendTo) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidParams)
	case !emailRegex.MatchString(p.SendTo):
		return fmt.Errorf("%w: invalid recipient %q", ErrInvalidParams, p.SendTo)
	case strings.TrimSpace(p.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	case strings.TrimSpace(p.BodyHTML) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}
