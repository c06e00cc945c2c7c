package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// OrderType is the billing plan of an order
type OrderType string

const (
	OrderTypeMonthly OrderType = "monthly"
	OrderTypeYearly  OrderType = "yearly"
	OrderTypePerUse  OrderType = "per_use"
)

// String implements the Stringer interface
func (t OrderType) String() string {
	return string(t)
}

// IsValid checks if the OrderType is valid
func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeMonthly, OrderTypeYearly, OrderTypePerUse:
		return true
	default:
		return false
	}
}

// Label is the human readable plan name used in payment descriptions
func (t OrderType) Label() string {
	switch t {
	case OrderTypeMonthly:
		return "monthly subscription"
	case OrderTypeYearly:
		return "yearly subscription"
	case OrderTypePerUse:
		return "pay per use"
	default:
		return string(t)
	}
}

// ParseOrderType parses a string into an OrderType
func ParseOrderType(s string) (OrderType, error) {
	orderType := OrderType(s)
	if !orderType.IsValid() {
		return "", fmt.Errorf("invalid order type: %q (must be monthly, yearly or per_use)", s)
	}
	return orderType, nil
}

// ErrInvalidOrderToken is returned when an order id does not have the expected shape
var ErrInvalidOrderToken = errors.New("invalid order token")

// OrderToken is the structured order id sent to the payment gateway:
// {project_id}-{order_type}-{unix_ms}-{nonce}
type OrderToken struct {
	ProjectID int64
	OrderType OrderType
	Timestamp int64 // unix milliseconds
	Nonce     int   // 0..9999
}

// NewOrderToken creates a token for the given project and plan at now
func NewOrderToken(projectID int64, orderType OrderType, now time.Time) OrderToken {
	return OrderToken{
		ProjectID: projectID,
		OrderType: orderType,
		Timestamp: now.UnixMilli(),
		Nonce:     rand.IntN(10000),
	}
}

func (o OrderToken) String() string {
	return fmt.Sprintf("%d-%s-%d-%d", o.ProjectID, o.OrderType, o.Timestamp, o.Nonce)
}

// ParseOrderToken parses an order id produced by OrderToken.String
func ParseOrderToken(s string) (OrderToken, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return OrderToken{}, fmt.Errorf("%w: %q", ErrInvalidOrderToken, s)
	}

	projectID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || projectID <= 0 {
		return OrderToken{}, fmt.Errorf("%w: bad project id in %q", ErrInvalidOrderToken, s)
	}

	orderType, err := ParseOrderType(parts[1])
	if err != nil {
		return OrderToken{}, fmt.Errorf("%w: %v", ErrInvalidOrderToken, err)
	}

	timestamp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || timestamp < 0 {
		return OrderToken{}, fmt.Errorf("%w: bad timestamp in %q", ErrInvalidOrderToken, s)
	}

	nonce, err := strconv.Atoi(parts[3])
	if err != nil || nonce < 0 || nonce > 9999 {
		return OrderToken{}, fmt.Errorf("%w: bad nonce in %q", ErrInvalidOrderToken, s)
	}

	return OrderToken{
		ProjectID: projectID,
		OrderType: orderType,
		Timestamp: timestamp,
		Nonce:     nonce,
	}, nil
}

// AdditionalData is carried through the gateway's opaque additional_data field
// and is the only link between a webhook and the order that produced it.
type AdditionalData struct {
	ProjectID int64     `json:"project_id"`
	OrderType OrderType `json:"order_type"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	ReturnURL string    `json:"return_url,omitempty"`
	Secret    string    `json:"secret"`
}

// Encode serializes the data into the JSON string sent to the gateway
func (a AdditionalData) Encode() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode additional data: %w", err)
	}
	return string(data), nil
}

// Validate checks that every field needed for provisioning is present
func (a AdditionalData) Validate() error {
	switch {
	case a.ProjectID <= 0:
		return errors.New("additional data is missing project_id")
	case a.OrderType == "":
		return errors.New("additional data is missing order_type")
	case !a.OrderType.IsValid():
		return fmt.Errorf("additional data has invalid order_type %q", a.OrderType)
	case a.Quantity <= 0:
		return errors.New("additional data is missing quantity")
	case a.Secret == "":
		return errors.New("additional data is missing secret")
	}
	return nil
}

// DecodeAdditionalData parses the additional_data string of a gateway payload.
// It does not validate; callers that only need the project id can use a partial result.
func DecodeAdditionalData(s string) (AdditionalData, error) {
	var a AdditionalData
	if s == "" {
		return a, errors.New("additional data is empty")
	}
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return a, fmt.Errorf("failed to decode additional data: %w", err)
	}
	return a, nil
}

// WithoutSecret returns a copy with the pre-generated secret removed
func (a AdditionalData) WithoutSecret() AdditionalData {
	a.Secret = ""
	return a
}
