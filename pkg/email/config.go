package email

// Config holds email settings. Without Postmark tokens the service writes
// messages to DevDir instead of sending them.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"noreply@bookrent.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@bookrent.local"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

func (c Config) postmarkEnabled() bool {
	return c.PostmarkServerToken != "" || c.PostmarkAccountToken != ""
}

// NewSender returns a Postmark sender when tokens are configured and a
// DevSender otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.postmarkEnabled() {
		pm, err := NewPostmark(cfg)
		if err != nil {
			return nil, err
		}
		return pm, nil
	}
	return NewDevSender(cfg.DevDir), nil
}
