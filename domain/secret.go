package domain

import (
	"fmt"
	"time"

	"github.com/gosimple/slug"
)

// TimestampLayout is the fixed-width UTC layout used for secret timestamps in the store.
// Fixed width keeps lexicographic and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NeverExpires is the stored expires_at marker equivalent to NULL
const NeverExpires = "0"

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp. Empty and NeverExpires yield nil.
func ParseTimestamp(s string) (*time.Time, error) {
	if s == "" || s == NeverExpires {
		return nil, nil
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp: %q", s)
}

// Secret is a bearer credential scoped to one project
type Secret struct {
	ID           int64
	Name         string
	Value        string
	Description  *string
	ProjectID    *int64
	CurrentCalls int
	MaxCalls     *int       // nil or 0 means unlimited
	ExpiresAt    *time.Time // nil means never
	LastUsedAt   *time.Time
	OrderID      *string // set when provisioned from a paid order
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the secret is past its expiry at now
func (s *Secret) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// QuotaExhausted reports whether all calls allowed by MaxCalls are used
func (s *Secret) QuotaExhausted() bool {
	return s.MaxCalls != nil && *s.MaxCalls != 0 && s.CurrentCalls >= *s.MaxCalls
}

// Usable mirrors the store predicate used by the secret ledger
func (s *Secret) Usable(now time.Time) bool {
	return !s.Expired(now) && !s.QuotaExhausted()
}

// RemainingCalls returns the calls left, or -1 when unlimited
func (s *Secret) RemainingCalls() int {
	if s.MaxCalls == nil || *s.MaxCalls == 0 {
		return -1
	}
	return max(*s.MaxCalls-s.CurrentCalls, 0)
}

// ProvisionedSecretName derives a readable, unique-ish name for a secret minted from an order
func ProvisionedSecretName(projectName string, orderType OrderType, now time.Time) string {
	base := slug.Make(fmt.Sprintf("%s %s", projectName, orderType))
	if base == "" {
		base = "api-key"
	}
	return fmt.Sprintf("%s-%d", base, now.UnixMilli())
}

// NewProvisionedSecret builds the secret minted for a paid order.
// Subscriptions get an expiry quantity months or years from now, per-use orders get a call quota.
func NewProvisionedSecret(project *Project, value string, orderType OrderType, quantity int, orderID string, now time.Time) (*Secret, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if value == "" {
		return nil, fmt.Errorf("secret value cannot be empty")
	}

	projectID := project.ID
	description := fmt.Sprintf("Issued automatically after payment - %s", orderType.Label())
	s := &Secret{
		Name:        ProvisionedSecretName(project.Name, orderType, now),
		Value:       value,
		Description: &description,
		ProjectID:   &projectID,
	}

	switch orderType {
	case OrderTypeMonthly:
		expires := now.UTC().AddDate(0, quantity, 0)
		s.ExpiresAt = &expires
	case OrderTypeYearly:
		expires := now.UTC().AddDate(quantity, 0, 0)
		s.ExpiresAt = &expires
	case OrderTypePerUse:
		maxCalls := quantity
		s.MaxCalls = &maxCalls
	default:
		return nil, fmt.Errorf("invalid order type: %q", orderType)
	}

	if orderID != "" {
		s.OrderID = &orderID
	}

	return s, nil
}
