package gateway

import "time"

// Config holds acquiring credentials and endpoints.
// PrivateKey is deliberately not marked required: NewClient reports its
// absence with ErrMissingPrivateKey so callers get a typed error.
type Config struct {
	BaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"https://api.monobank.ua/api"`
	PublicKey     string        `env:"GATEWAY_PUBLIC_KEY"`
	PrivateKey    string        `env:"GATEWAY_PRIVATE_KEY"`
	MerchantID    string        `env:"GATEWAY_MERCHANT_ID"`
	WebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET"` // defaults to PrivateKey
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	Currency      int           `env:"GATEWAY_CURRENCY" envDefault:"980"` // ISO 4217 numeric, 980 = UAH
	CallbackURL   string        `env:"GATEWAY_CALLBACK_URL"`
	RedirectURL   string        `env:"GATEWAY_REDIRECT_URL"`
}

// SigningSecret is the key callbacks are verified with.
func (c Config) SigningSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.PrivateKey
}
