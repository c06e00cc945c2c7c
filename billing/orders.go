// Package billing creates payment orders for project plans and provisions
// secrets when the payment gateway reports an order as paid.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/payment"
	"github.com/bygga/bygga/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultCurrency = "USD"
	DefaultLifetime = 3600 // seconds an invoice stays payable
)

type Config struct {
	AppURL       string
	Currency     string
	Lifetime     int
	SecretLength int
}

// Service handles orders and the payment webhook
type Service struct {
	projects repository.ProjectRepository
	secrets  repository.SecretRepository
	gateway  payment.Gateway
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

func NewService(
	projects repository.ProjectRepository,
	secrets repository.SecretRepository,
	gateway payment.Gateway,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.SecretLength <= 0 {
		cfg.SecretLength = encryption.DefaultSecretLength
	}
	cfg.AppURL = strings.TrimSuffix(cfg.AppURL, "/")
	return &Service{
		projects: projects,
		secrets:  secrets,
		gateway:  gateway,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// OrderRequest is a request to buy a plan of a project
type OrderRequest struct {
	ProjectID int64  `json:"project_id" validate:"required,gt=0"`
	OrderType string `json:"order_type" validate:"required,oneof=monthly yearly per_use"`
	Quantity  *int   `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	ReturnURL string `json:"return_url,omitempty" validate:"omitempty,url"`
}

type PaymentDetails struct {
	UUID       string          `json:"uuid"`
	OrderID    string          `json:"order_id"`
	Status     string          `json:"status"`
	Currencies json.RawMessage `json:"currencies,omitempty"`
}

// Order is a created payment intent
type Order struct {
	ProjectID      int64            `json:"project_id"`
	ProjectName    string           `json:"project_name"`
	OrderType      domain.OrderType `json:"order_type"`
	Quantity       int              `json:"quantity"`
	UnitPrice      float64          `json:"unit_price"`
	TotalAmount    float64          `json:"total_amount"`
	PaymentURL     string           `json:"payment_url"`
	ReturnURL      string           `json:"return_url"`
	PaymentDetails PaymentDetails   `json:"payment_details"`
}

// OrderStatus is the live state of an order as reported by the gateway.
// Secret is only filled in once the payment settled.
type OrderStatus struct {
	PaymentID  string           `json:"payment_id"`
	OrderID    string           `json:"order_id"`
	Status     string           `json:"status"`
	Amount     string           `json:"amount"`
	Currency   string           `json:"currency"`
	PaymentURL string           `json:"payment_url"`
	CreatedAt  string           `json:"created_at,omitempty"`
	UpdatedAt  string           `json:"updated_at,omitempty"`
	ProjectID  int64            `json:"project_id"`
	OrderType  domain.OrderType `json:"order_type,omitempty"`
	Quantity   int              `json:"quantity,omitempty"`
	UnitPrice  float64          `json:"unit_price,omitempty"`
	ReturnURL  string           `json:"return_url,omitempty"`
	Secret     string           `json:"secret,omitempty"`
}

// CreateOrder prices the order, pre-generates the secret the buyer will receive
// and creates an invoice at the gateway.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	order, err := s.createOrder(ctx, req)
	switch {
	case err == nil:
		s.metrics.RecordOrder(metrics.OutcomeSuccess)
	case domain.KindOf(err) == domain.KindUpstream:
		s.metrics.RecordOrder(metrics.OutcomeUpstreamError)
	default:
		s.metrics.RecordOrder(metrics.OutcomeRejected)
	}
	return order, err
}

func (s *Service) createOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.ProjectID <= 0 {
		return nil, domain.ValidationError("project_id is required")
	}
	orderType, err := domain.ParseOrderType(req.OrderType)
	if err != nil {
		return nil, domain.ValidationError("%s", err.Error())
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity <= 0 {
		return nil, domain.ValidationError("quantity must be greater than 0")
	}

	project, err := s.projects.FindByID(ctx, req.ProjectID)
	if err != nil {
		return nil, lookupError("project", err)
	}

	unitPrice, ok := project.Pricing.UnitPrice(orderType)
	if !ok || unitPrice <= 0 {
		return nil, domain.ValidationError("project does not offer the %s plan", orderType)
	}
	creds, ok := gatewayCredentials(project)
	if !ok || creds.MerchantID == "" {
		return nil, domain.ValidationError("payment is not configured for this project")
	}

	total := unitPrice * float64(quantity)

	secret, err := encryption.GenerateSecret(s.cfg.SecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	token := domain.NewOrderToken(project.ID, orderType, s.now())
	orderID := token.String()

	additional, err := domain.AdditionalData{
		ProjectID: project.ID,
		OrderType: orderType,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		ReturnURL: req.ReturnURL,
		Secret:    secret,
	}.Encode()
	if err != nil {
		return nil, err
	}

	returnURL := s.returnURL(req.ReturnURL, orderID)
	invoice, err := s.gateway.CreatePayment(ctx, creds, payment.CreatePaymentRequest{
		Amount:            formatAmount(total),
		Currency:          s.cfg.Currency,
		OrderID:           orderID,
		URLReturn:         returnURL,
		URLCallback:       s.cfg.AppURL + "/api/payment/webhook",
		IsPaymentMultiple: false,
		Lifetime:          s.cfg.Lifetime,
		Description:       fmt.Sprintf("%s - %s x %d", project.Name, orderType.Label(), quantity),
		AdditionalData:    additional,
	})
	if err != nil {
		slog.Error("Failed to create payment",
			"layer", "service",
			"operation", "create_order",
			"project_id", project.ID,
			"order_id", orderID,
			"error", err)
		return nil, domain.UpstreamError("failed to create payment", err)
	}

	slog.Info("Order created",
		"project_id", project.ID,
		"order_id", orderID,
		"order_type", orderType,
		"quantity", quantity,
		"payment_uuid", invoice.UUID)

	return &Order{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		OrderType:   orderType,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalAmount: total,
		PaymentURL:  invoice.URL,
		ReturnURL:   returnURL,
		PaymentDetails: PaymentDetails{
			UUID:       invoice.UUID,
			OrderID:    orderID,
			Status:     string(domain.PaymentStatusPending),
			Currencies: invoice.Currencies,
		},
	}, nil
}

// OrderStatus looks up an order by gateway uuid or by order token.
// A token names its project, a uuid needs projectID from the caller.
func (s *Service) OrderStatus(ctx context.Context, id string, projectID int64) (*OrderStatus, error) {
	if id == "" {
		return nil, domain.ValidationError("order id is required")
	}

	lookup := payment.InfoLookup{}
	if isUUID(id) {
		lookup.UUID = id
	} else {
		lookup.OrderID = id
		token, err := domain.ParseOrderToken(id)
		if err == nil {
			projectID = token.ProjectID
		} else if projectID <= 0 {
			return nil, domain.ValidationError("invalid order id")
		}
	}
	if projectID <= 0 {
		return nil, domain.ValidationError("project_id is required to look up a payment by uuid")
	}

	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, lookupError("project", err)
	}
	creds, ok := gatewayCredentials(project)
	if !ok {
		return nil, domain.ValidationError("payment is not configured for this project")
	}

	invoice, err := s.gateway.PaymentInfo(ctx, creds, lookup)
	if err != nil {
		slog.Warn("Failed to query payment",
			"layer", "service",
			"operation", "order_status",
			"project_id", projectID,
			"order", id,
			"error", err)
		return nil, domain.UpstreamError("failed to query payment", err)
	}

	status := &OrderStatus{
		PaymentID:  invoice.UUID,
		OrderID:    invoice.OrderID,
		Status:     invoice.Status,
		Amount:     invoice.Amount,
		Currency:   invoice.Currency,
		PaymentURL: invoice.URL,
		CreatedAt:  invoice.CreatedAt,
		UpdatedAt:  invoice.UpdatedAt,
		ProjectID:  projectID,
	}
	if token, err := domain.ParseOrderToken(invoice.OrderID); err == nil {
		status.OrderType = token.OrderType
	}

	if invoice.AdditionalData != nil {
		data, err := domain.DecodeAdditionalData(*invoice.AdditionalData)
		if err != nil {
			slog.Warn("Ignoring malformed additional data",
				"layer", "service",
				"operation", "order_status",
				"payment_uuid", invoice.UUID,
				"error", err)
		} else if data.ProjectID == projectID {
			status.OrderType = data.OrderType
			status.Quantity = data.Quantity
			status.UnitPrice = data.UnitPrice
			status.ReturnURL = data.ReturnURL
			if domain.PaymentStatus(invoice.Status).Settled() {
				status.Secret = data.Secret
			}
		}
	}

	return status, nil
}

func (s *Service) returnURL(base, orderID string) string {
	query := "order_id=" + url.QueryEscape(orderID)
	if base == "" {
		return s.cfg.AppURL + "/payment/success?" + query
	}
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

func gatewayCredentials(project *domain.Project) (payment.Credentials, bool) {
	cfg, ok := project.PaymentConfig.GatewayCredentials()
	if !ok {
		return payment.Credentials{}, false
	}
	return payment.Credentials{MerchantID: cfg.MerchantID, APIKey: cfg.APIKey}, true
}

// formatAmount renders an amount the way the gateway expects it: plain decimal, no exponent
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError(what)
	}
	return domain.PersistenceError(fmt.Sprintf("failed to load %s", what), err)
}
