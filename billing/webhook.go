package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/payment"
	"github.com/bygga/bygga/repository"
	"gorm.io/gorm"
)

// WebhookOutcome is what the pipeline did with an authentic notification
type WebhookOutcome int

const (
	// WebhookReceived acknowledges a notification whose status does not grant anything
	WebhookReceived WebhookOutcome = iota
	// WebhookProvisioned means a secret was created for the order
	WebhookProvisioned
	// WebhookDuplicate means the order already had its secret
	WebhookDuplicate
)

func (o WebhookOutcome) String() string {
	switch o {
	case WebhookProvisioned:
		return "provisioned"
	case WebhookDuplicate:
		return "duplicate"
	default:
		return "received"
	}
}

// WebhookResult describes a handled notification
type WebhookResult struct {
	Outcome WebhookOutcome
	Secret  *domain.Secret
}

// HandleWebhook runs a raw payment notification through the provisioning pipeline:
// parse, resolve the project's credentials, verify the signature, gate on status and provision.
// Errors carry a domain kind. Persistence failures are reported so the gateway retries.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	result, err := s.handleWebhook(ctx, body)
	switch {
	case err != nil:
		switch domain.KindOf(err) {
		case domain.KindAuthorization:
			s.metrics.RecordWebhook(metrics.OutcomeUnauthorized)
		case domain.KindPersistence:
			s.metrics.RecordWebhook(metrics.OutcomePersistenceError)
		default:
			s.metrics.RecordWebhook(metrics.OutcomeRejected)
		}
	case result.Outcome == WebhookProvisioned:
		s.metrics.RecordWebhook(metrics.OutcomeSuccess)
	case result.Outcome == WebhookDuplicate:
		s.metrics.RecordWebhook(metrics.OutcomeDuplicate)
	default:
		s.metrics.RecordWebhook(metrics.OutcomeReceived)
	}
	return result, err
}

func (s *Service) handleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	hook, err := payment.ParseWebhook(body)
	if err != nil {
		return nil, domain.ValidationError("malformed webhook body")
	}

	data, err := domain.DecodeAdditionalData(hook.AdditionalDataString())
	if err != nil {
		return nil, domain.ValidationError("malformed additional_data")
	}
	if err := data.Validate(); err != nil {
		return nil, domain.ValidationError("%s", err.Error())
	}

	// The order id is signed too, so a mismatch with additional_data means the order was not ours
	if token, err := domain.ParseOrderToken(hook.OrderID); err == nil {
		if token.ProjectID != data.ProjectID || token.OrderType != data.OrderType {
			return nil, domain.ValidationError("order_id does not match additional_data")
		}
	}

	project, err := s.projects.FindByID(ctx, data.ProjectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ValidationError("payment is not configured for this project")
	}
	if err != nil {
		return nil, domain.PersistenceError("failed to load project", err)
	}
	creds, ok := gatewayCredentials(project)
	if !ok {
		return nil, domain.ValidationError("payment is not configured for this project")
	}

	if err := payment.Verify(body, creds.APIKey); err != nil {
		slog.Warn("Rejected payment webhook",
			"layer", "service",
			"operation", "verify_webhook",
			"project_id", project.ID,
			"order_id", hook.OrderID,
			"error", err)
		if errors.Is(err, payment.ErrSignatureMissing) {
			return nil, domain.AuthorizationError("missing signature")
		}
		return nil, domain.AuthorizationError("invalid signature")
	}

	if !domain.PaymentStatus(hook.Status).Settled() {
		slog.Debug("Payment webhook acknowledged",
			"project_id", project.ID,
			"order_id", hook.OrderID,
			"status", hook.Status)
		return &WebhookResult{Outcome: WebhookReceived}, nil
	}

	secret, err := domain.NewProvisionedSecret(project, data.Secret, data.OrderType, data.Quantity, hook.OrderID, s.now())
	if err != nil {
		return nil, domain.ValidationError("%s", err.Error())
	}

	provisioned, err := s.secrets.Provision(ctx, secret)
	if errors.Is(err, repository.ErrDuplicateOrder) {
		slog.Info("Payment webhook redelivered for provisioned order",
			"project_id", project.ID,
			"order_id", hook.OrderID,
			"secret_id", provisioned.ID)
		return &WebhookResult{Outcome: WebhookDuplicate, Secret: provisioned}, nil
	}
	if err != nil {
		slog.Error("Failed to provision secret for paid order",
			"layer", "service",
			"operation", "provision_secret",
			"project_id", project.ID,
			"order_id", hook.OrderID,
			"payment_uuid", hook.UUID,
			"error", err)
		return nil, domain.PersistenceError("failed to provision secret", err)
	}

	slog.Info("Secret provisioned",
		"project_id", project.ID,
		"order_id", hook.OrderID,
		"order_type", data.OrderType,
		"quantity", data.Quantity,
		"secret_id", provisioned.ID)

	return &WebhookResult{Outcome: WebhookProvisioned, Secret: provisioned}, nil
}
