package mocks

import (
	"context"

	"github.com/bygga/bygga/payment"
)

// MockGateway implements the payment.Gateway interface for testing
type MockGateway struct {
	CreatePaymentFunc func(ctx context.Context, creds payment.Credentials, req payment.CreatePaymentRequest) (*payment.Invoice, error)
	PaymentInfoFunc   func(ctx context.Context, creds payment.Credentials, lookup payment.InfoLookup) (*payment.Invoice, error)
}

func (m *MockGateway) CreatePayment(ctx context.Context, creds payment.Credentials, req payment.CreatePaymentRequest) (*payment.Invoice, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, creds, req)
	}
	return &payment.Invoice{
		UUID:    "00000000-0000-0000-0000-000000000000",
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Status:  "check",
	}, nil
}

func (m *MockGateway) PaymentInfo(ctx context.Context, creds payment.Credentials, lookup payment.InfoLookup) (*payment.Invoice, error) {
	if m.PaymentInfoFunc != nil {
		return m.PaymentInfoFunc(ctx, creds, lookup)
	}
	return &payment.Invoice{UUID: lookup.UUID, OrderID: lookup.OrderID, Status: "check"}, nil
}
