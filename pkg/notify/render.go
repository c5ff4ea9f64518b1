package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	SubscriptionActivated: "Your book subscription is active",
	PaymentFailed:         "Your payment did not go through",
}

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func isKnown(name string) bool {
	_, ok := subjects[name]
	return ok
}

// Render returns the subject and HTML body for msg.
func Render(msg Message) (subject, body string, err error) {
	if err := msg.validate(); err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, msg.Template+".html", msg.Data); err != nil {
		return "", "", fmt.Errorf("notify: render %s: %w", msg.Template, err)
	}
	return subjects[msg.Template], buf.String(), nil
}
