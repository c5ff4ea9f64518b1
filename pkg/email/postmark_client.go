package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark sends mail through the Postmark API. Replies go to the support
// address so readers can answer activation emails directly.
type Postmark struct {
	api      *postmark.Client
	from     string
	replyTo  string
	tracking bool
}

func (c Config) checkPostmark() error {
	var missing []string
	if c.PostmarkServerToken == "" {
		missing = append(missing, "PostmarkServerToken")
	}
	if c.PostmarkAccountToken == "" {
		missing = append(missing, "PostmarkAccountToken")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v is required", ErrInvalidConfig, missing)
	}
	for name, addr := range map[string]string{"SenderEmail": c.SenderEmail, "SupportEmail": c.SupportEmail} {
		if !emailRegex.MatchString(addr) {
			return fmt.Errorf("%w: %s %q is not an email address", ErrInvalidConfig, name, addr)
		}
	}
	return nil
}

func NewPostmark(cfg Config) (*Postmark, error) {
	if err := cfg.checkPostmark(); err != nil {
		return nil, err
	}
	return &Postmark{
		api:     postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    cfg.SenderEmail,
		replyTo: cfg.SupportEmail,
	}, nil
}

func (p *Postmark) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	msg := postmark.Email{
		From:       p.from,
		ReplyTo:    p.replyTo,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TrackOpens: p.tracking,
	}
	res, err := p.api.SendEmail(ctx, msg)
	switch {
	case err != nil:
		return errors.Join(ErrFailedToSendEmail, err)
	case res.ErrorCode != 0:
		return fmt.Errorf("%w: postmark code %d: %s", ErrFailedToSendEmail, res.ErrorCode, res.Message)
	}
	return nil
}
