package notify

import (
	"context"
	"errors"

	"github.com/dmitrymomot/bookrent/pkg/email"
	"github.com/dmitrymomot/bookrent/pkg/queue"
)

// NewHandler returns the queue handler that renders and emails a Message.
// Invalid messages are logged by the worker and dead-lettered after retries.
func NewHandler(sender email.Sender) queue.Handler {
	if sender == nil {
		panic("notify: nil email sender")
	}
	return queue.NewTaskHandler(func(ctx context.Context, msg Message) error {
		subject, body, err := Render(msg)
		if err != nil {
			return err
		}
		err = sender.SendEmail(ctx, email.SendEmailParams{
			SendTo:   msg.To,
			Subject:  subject,
			BodyHTML: body,
			Tag:      msg.Template,
		})
		if errors.Is(err, email.ErrInvalidParams) {
			// retrying cannot fix a bad address
			return nil
		}
		return err
	})
}
