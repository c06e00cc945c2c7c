package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Credentials identify a merchant at the gateway. Each project has its own.
type Credentials struct {
	MerchantID string
	APIKey     string
}

// CreatePaymentRequest is the body of the payment create call. Field order is the signed order.
type CreatePaymentRequest struct {
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	OrderID           string `json:"order_id"`
	URLReturn         string `json:"url_return,omitempty"`
	URLCallback       string `json:"url_callback,omitempty"`
	IsPaymentMultiple bool   `json:"is_payment_multiple"`
	Lifetime          int    `json:"lifetime,omitempty"`
	Description       string `json:"description,omitempty"`
	AdditionalData    string `json:"additional_data,omitempty"`
}

// Invoice is the subset of the gateway's payment object bygga uses
type Invoice struct {
	UUID           string          `json:"uuid"`
	OrderID        string          `json:"order_id"`
	Amount         string          `json:"amount"`
	PaymentAmount  *string         `json:"payment_amount,omitempty"`
	Currency       string          `json:"currency"`
	URL            string          `json:"url"`
	Status         string          `json:"payment_status"`
	IsFinal        bool            `json:"is_final"`
	AdditionalData *string         `json:"additional_data,omitempty"`
	Currencies     json.RawMessage `json:"currencies,omitempty"`
	ExpiredAt      int64           `json:"expired_at,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// InfoLookup selects an invoice either by gateway uuid or by merchant order id
type InfoLookup struct {
	UUID    string `json:"uuid,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

type gatewayResponse struct {
	State   int             `json:"state"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message,omitempty"`
}

// Gateway is the outbound surface used by billing
type Gateway interface {
	CreatePayment(ctx context.Context, creds Credentials, req CreatePaymentRequest) (*Invoice, error)
	PaymentInfo(ctx context.Context, creds Credentials, lookup InfoLookup) (*Invoice, error)
}

// Client calls the gateway over HTTP. Calls are not retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client for baseURL (for example https://api.cryptomus.com/v1)
func NewClient(baseURL string, timeout time.Duration) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreatePayment creates an invoice and returns its payment URL and uuid
func (c *Client) CreatePayment(ctx context.Context, creds Credentials, req CreatePaymentRequest) (*Invoice, error) {
	var invoice Invoice
	if err := c.call(ctx, "/payment", creds, req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// PaymentInfo returns the current state of an invoice
func (c *Client) PaymentInfo(ctx context.Context, creds Credentials, lookup InfoLookup) (*Invoice, error) {
	if lookup.UUID == "" && lookup.OrderID == "" {
		return nil, fmt.Errorf("payment lookup requires a uuid or an order id")
	}
	var invoice Invoice
	if err := c.call(ctx, "/payment/info", creds, lookup, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (c *Client) call(ctx context.Context, path string, creds Credentials, body any, out any) error {
	if creds.MerchantID == "" || creds.APIKey == "" {
		return fmt.Errorf("payment gateway credentials are not configured")
	}

	data, err := encodeJSON(body)
	if err != nil {
		return err
	}
	signature := SignBytes(data, creds.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", creds.MerchantID)
	req.Header.Set("sign", signature)

	slog.Debug("Calling payment gateway", "layer", "payment", "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close() // nolint: errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payment gateway returned HTTP %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var envelope gatewayResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("malformed gateway response: %w", err)
	}
	if envelope.State != 0 {
		return fmt.Errorf("payment gateway returned state %d: %s", envelope.State, envelope.Message)
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("malformed gateway response: missing result")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("malformed gateway result: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
