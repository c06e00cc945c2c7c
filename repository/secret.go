package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"gorm.io/gorm"
)

var (
	// ErrSecretUnavailable means no secret matched value, project, expiry and quota together
	ErrSecretUnavailable = errors.New("secret is invalid, expired or exhausted")
	// ErrDuplicateOrder means a secret was already provisioned for the order
	ErrDuplicateOrder = errors.New("secret already provisioned for order")
)

// reserveAttempts bounds the optimistic validate-then-increment loop
const reserveAttempts = 3

// usableClause is the usability predicate, evaluated by the store so check and use cannot race.
// expires_at is fixed-width UTC text, so string comparison is chronological.
const usableClause = `(expires_at IS NULL OR expires_at = '0' OR expires_at = '' OR expires_at >= ?)` +
	` AND (max_calls IS NULL OR max_calls = 0 OR COALESCE(current_calls, 0) < max_calls)`

type SecretFilter struct {
	Name      string
	ProjectID *int64
	ListOptions
}

// SecretRepository is the secret ledger plus admin access to secrets
type SecretRepository interface {
	// Validate looks up a usable secret by value and project. It never mutates.
	Validate(ctx context.Context, value string, projectID int64) (*domain.Secret, bool, error)
	// Consume counts one call against the secret if it is still usable
	Consume(ctx context.Context, secretID int64) error
	// Reserve validates and consumes in one step, retrying when a concurrent caller wins the increment
	Reserve(ctx context.Context, value string, projectID int64) (*domain.Secret, error)
	// Release gives back a call taken by Reserve or Consume
	Release(ctx context.Context, secretID int64) error
	// Provision inserts a secret minted from a paid order, at most once per order id
	Provision(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)

	FindByID(ctx context.Context, id int64) (*domain.Secret, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Secret, error)
	List(ctx context.Context, filter SecretFilter) (*Page[*domain.Secret], error)
	Create(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)
	Update(ctx context.Context, secret *domain.Secret) error
	Delete(ctx context.Context, id int64) error
}

type secretRepository struct {
	db     *gorm.DB
	mapper *SecretMapper
	now    func() time.Time
}

func (r *secretRepository) Validate(ctx context.Context, value string, projectID int64) (*domain.Secret, bool, error) {
	if value == "" {
		return nil, false, nil
	}

	var m db.SecretModel
	err := r.db.WithContext(ctx).
		Where("value = ? AND project_id = ?", value, projectID).
		Where(usableClause, r.timestamp()).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "validate_secret",
			"project_id", projectID,
			"error", err)
		return nil, false, err
	}
	return r.mapper.ToDomain(&m), true, nil
}

func (r *secretRepository) Consume(ctx context.Context, secretID int64) error {
	now := r.timestamp()
	res := r.db.WithContext(ctx).Model(&db.SecretModel{}).
		Where("id = ?", secretID).
		Where(usableClause, now).
		Updates(map[string]any{
			"current_calls": gorm.Expr("COALESCE(current_calls, 0) + 1"),
			"last_used_at":  now,
		})
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "consume_secret",
			"secret_id", secretID,
			"error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSecretUnavailable
	}
	return nil
}

func (r *secretRepository) Reserve(ctx context.Context, value string, projectID int64) (*domain.Secret, error) {
	for attempt := 1; attempt <= reserveAttempts; attempt++ {
		secret, valid, err := r.Validate(ctx, value, projectID)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, ErrSecretUnavailable
		}

		err = r.Consume(ctx, secret.ID)
		if errors.Is(err, ErrSecretUnavailable) {
			slog.Debug("Secret reservation lost a race, retrying",
				"secret_id", secret.ID,
				"attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		return r.FindByID(ctx, secret.ID)
	}
	return nil, ErrSecretUnavailable
}

func (r *secretRepository) Release(ctx context.Context, secretID int64) error {
	res := r.db.WithContext(ctx).Model(&db.SecretModel{}).
		Where("id = ? AND current_calls > 0", secretID).
		Update("current_calls", gorm.Expr("current_calls - 1"))
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "release_secret",
			"secret_id", secretID,
			"error", res.Error)
		return res.Error
	}
	return nil
}

func (r *secretRepository) Provision(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	created, err := r.Create(ctx, secret)
	if err == nil {
		return created, nil
	}

	if secret.OrderID != nil {
		existing, findErr := r.FindByOrderID(ctx, *secret.OrderID)
		if findErr == nil {
			return existing, ErrDuplicateOrder
		}
	}
	return nil, err
}

func (r *secretRepository) FindByID(ctx context.Context, id int64) (*domain.Secret, error) {
	var m db.SecretModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *secretRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Secret, error) {
	var m db.SecretModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *secretRepository) List(ctx context.Context, filter SecretFilter) (*Page[*domain.Secret], error) {
	query := r.db.WithContext(ctx).Model(&db.SecretModel{})
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}

	var models []db.SecretModel
	total, err := findPage(query, filter.ListOptions, &models)
	if err != nil {
		return nil, err
	}

	secrets := make([]*domain.Secret, len(models))
	for i, model := range models {
		secrets[i] = r.mapper.ToDomain(&model)
	}
	return newPage(secrets, filter.ListOptions, total), nil
}

func (r *secretRepository) Create(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	m := r.mapper.ToModel(secret)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_secret",
			"secret_name", secret.Name,
			"error", err)
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *secretRepository) Update(ctx context.Context, secret *domain.Secret) error {
	m := r.mapper.ToModel(secret)
	res := r.db.WithContext(ctx).Model(&db.SecretModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at", "order_id").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *secretRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&db.SecretModel{}, id)
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "delete_secret",
			"secret_id", id,
			"error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *secretRepository) timestamp() string {
	return domain.FormatTimestamp(r.now())
}

func NewSecretRepository(db *gorm.DB) SecretRepository {
	return newSecretRepository(db, time.Now)
}

func newSecretRepository(db *gorm.DB, now func() time.Time) *secretRepository {
	return &secretRepository{
		db:     db,
		mapper: &SecretMapper{},
		now:    now,
	}
}
