package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/repository"
	"gorm.io/gorm"
)

// SecretService is the admin surface of the secret ledger
type SecretService struct {
	secretRepository  repository.SecretRepository
	projectRepository repository.ProjectRepository
	secretLength      int
	now               func() time.Time
}

var _ SecretManager = (*SecretService)(nil)

func (s *SecretService) List(ctx context.Context, filter repository.SecretFilter) (*repository.Page[*domain.Secret], error) {
	page, err := s.secretRepository.List(ctx, filter)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "list_secrets",
			"error", err)
		return nil, err
	}
	return page, nil
}

func (s *SecretService) Get(ctx context.Context, id int64) (*domain.Secret, error) {
	secret, err := s.secretRepository.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("secret", err)
	}
	return secret, nil
}

// Create stores a new secret. The name defaults to secret-<unix ms>, the value is generated
// when empty and the call counter always starts at zero.
func (s *SecretService) Create(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	secret.Name = strings.TrimSpace(secret.Name)
	if secret.Name == "" {
		secret.Name = fmt.Sprintf("secret-%d", s.now().UnixMilli())
	}
	if err := s.prepare(ctx, secret); err != nil {
		return nil, err
	}
	if secret.MaxCalls == nil {
		unlimited := 0
		secret.MaxCalls = &unlimited
	}
	secret.CurrentCalls = 0
	secret.LastUsedAt = nil
	secret.OrderID = nil

	created, err := s.secretRepository.Create(ctx, secret)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "create_secret",
			"secret_name", secret.Name,
			"error", err)
		return nil, err
	}

	slog.Info("Secret created", "secret_id", created.ID, "secret_name", created.Name)
	return created, nil
}

// Update replaces a secret's editable fields. An empty value is regenerated.
func (s *SecretService) Update(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	existing, err := s.Get(ctx, secret.ID)
	if err != nil {
		return nil, err
	}

	secret.Name = strings.TrimSpace(secret.Name)
	if secret.Name == "" {
		secret.Name = existing.Name
	}
	if err := s.prepare(ctx, secret); err != nil {
		return nil, err
	}
	if secret.CurrentCalls < 0 {
		return nil, domain.ValidationError("current_calls cannot be negative")
	}
	secret.CreatedAt = existing.CreatedAt

	if err := s.secretRepository.Update(ctx, secret); err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "update_secret",
			"secret_id", secret.ID,
			"error", err)
		return nil, notFound("secret", err)
	}
	return s.Get(ctx, secret.ID)
}

func (s *SecretService) Remove(ctx context.Context, id int64) error {
	if err := s.secretRepository.Delete(ctx, id); err != nil {
		return notFound("secret", err)
	}
	slog.Info("Secret removed", "secret_id", id)
	return nil
}

// Validate reports whether value is a usable secret of the project. It never consumes a call.
func (s *SecretService) Validate(ctx context.Context, value string, projectID int64) (bool, error) {
	if value == "" {
		return false, domain.ValidationError("secret is required")
	}
	if projectID <= 0 {
		return false, domain.ValidationError("project_id is required")
	}

	_, valid, err := s.secretRepository.Validate(ctx, value, projectID)
	if err != nil {
		return false, domain.PersistenceError("failed to validate secret", err)
	}
	return valid, nil
}

// prepare generates a missing value and checks the project reference and quota
func (s *SecretService) prepare(ctx context.Context, secret *domain.Secret) error {
	secret.Value = strings.TrimSpace(secret.Value)
	if secret.Value == "" {
		value, err := encryption.GenerateSecret(s.secretLength)
		if err != nil {
			return err
		}
		secret.Value = value
	}

	if secret.MaxCalls != nil && *secret.MaxCalls < 0 {
		return domain.ValidationError("max_calls cannot be negative")
	}

	if secret.ProjectID != nil {
		_, err := s.projectRepository.FindByID(ctx, *secret.ProjectID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ValidationError("project does not exist")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func NewSecretService(
	secretRepository repository.SecretRepository,
	projectRepository repository.ProjectRepository,
	secretLength int,
) *SecretService {
	if secretLength <= 0 {
		secretLength = encryption.DefaultSecretLength
	}
	return &SecretService{
		secretRepository:  secretRepository,
		projectRepository: projectRepository,
		secretLength:      secretLength,
		now:               time.Now,
	}
}
