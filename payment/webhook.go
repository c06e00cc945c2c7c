package payment

import (
	"encoding/json"
	"fmt"
)

// Webhook is the subset of the gateway's payment notification bygga reads.
// The raw body, not this struct, is what the signature covers.
type Webhook struct {
	Type           string  `json:"type"`
	UUID           string  `json:"uuid"`
	OrderID        string  `json:"order_id"`
	Amount         string  `json:"amount"`
	PaymentAmount  string  `json:"payment_amount"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	IsFinal        bool    `json:"is_final"`
	AdditionalData *string `json:"additional_data"`
	Sign           string  `json:"sign"`
}

// ParseWebhook decodes a notification body without verifying it
func ParseWebhook(body []byte) (*Webhook, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	return &w, nil
}

// AdditionalDataString returns the additional_data field, or "" when absent
func (w *Webhook) AdditionalDataString() string {
	if w.AdditionalData == nil {
		return ""
	}
	return *w.AdditionalData
}
