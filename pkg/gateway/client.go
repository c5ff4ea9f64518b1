// Package gateway talks to the acquiring API: invoice creation, status
// polling and callback signature verification.
//
// The client is a thin boundary. It never retries; callers decide with
// IsRetryable and Retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/logger"
)

const (
	tokenHeader     = "X-Token"
	maxResponseBody = 1 << 20

	opCreateInvoice = "create_invoice"
	opCheckStatus   = "check_status"
)

type Client struct {
	baseURL     string
	token       string
	currency    int
	redirectURL string
	callbackURL string

	http     *http.Client
	log      *slog.Logger
	observer Observer
}

// NewClient fails fast when the private key or base URL is missing.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, ErrMissingPrivateKey
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.PrivateKey,
		currency:    cfg.Currency,
		redirectURL: cfg.RedirectURL,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: timeout},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("gateway"))
	return c, nil
}

type createInvoiceRequest struct {
	Amount           int64            `json:"amount"`
	Currency         int              `json:"ccy,omitempty"`
	MerchantPaymInfo merchantPaymInfo `json:"merchantPaymInfo"`
	RedirectURL      string           `json:"redirectUrl,omitempty"`
	WebHookURL       string           `json:"webHookUrl,omitempty"`
}

type merchantPaymInfo struct {
	Reference   string `json:"reference"`
	Destination string `json:"destination,omitempty"`
}

// CreateInvoice registers a new invoice and returns its id and payment page.
func (c *Client) CreateInvoice(ctx context.Context, p InvoiceParams) (*Invoice, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(p.Reference) == "" {
		return nil, ErrEmptyReference
	}

	body := createInvoiceRequest{
		Amount:   p.Amount,
		Currency: firstNonZero(p.Currency, c.currency),
		MerchantPaymInfo: merchantPaymInfo{
			Reference:   p.Reference,
			Destination: p.Description,
		},
		RedirectURL: firstNonEmpty(p.RedirectURL, c.redirectURL),
		WebHookURL:  firstNonEmpty(p.CallbackURL, c.callbackURL),
	}

	var inv Invoice
	if err := c.do(ctx, opCreateInvoice, http.MethodPost, "/merchant/invoice/create", nil, body, &inv); err != nil {
		return nil, err
	}
	if inv.InvoiceID == "" {
		return nil, &GatewayError{Op: opCreateInvoice, Err: errors.New("gateway returned an empty invoiceId")}
	}
	return &inv, nil
}

// CheckStatus reads the current invoice status. It is safe to poll.
func (c *Client) CheckStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, ErrEmptyInvoiceID
	}
	var st InvoiceStatus
	q := url.Values{"invoiceId": {invoiceID}}
	if err := c.do(ctx, opCheckStatus, http.MethodGet, "/merchant/invoice/status", q, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if c.observer != nil {
			c.observer.ObserveGatewayCall(op, outcome, time.Since(start))
		}
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "transport_error"
		// url.Error prefixes the method and URL; keep the cause's own message.
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Err != nil {
			err = uerr.Err
		}
		c.log.WarnContext(ctx, "gateway request failed", slog.String("op", op), logger.Error(err))
		return &GatewayError{Op: op, Err: err, transport: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		outcome = "transport_error"
		return &GatewayError{Op: op, Err: err, transport: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "http_error"
		c.log.WarnContext(ctx, "gateway returned error status",
			slog.String("op", op),
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncate(string(raw), 512)),
		)
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			outcome = "http_error"
			return &GatewayError{Op: op, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}

func firstNonZero(v ...int) int {
	for _, n := range v {
		if n != 0 {
			return n
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
