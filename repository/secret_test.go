package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var ledgerNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func setupLedger(t *testing.T) (*secretRepository, *gorm.DB, *domain.Project) {
	t.Helper()
	database := setupTestDB(t)
	project := createTestProject(t, database, "Static site")
	repo := newSecretRepository(database, func() time.Time { return ledgerNow })
	return repo, database, project
}

func createSecret(t *testing.T, repo *secretRepository, projectID int64, value string, mutate func(*domain.Secret)) *domain.Secret {
	t.Helper()
	secret := &domain.Secret{
		Name:      "secret-" + value,
		Value:     value,
		ProjectID: &projectID,
	}
	if mutate != nil {
		mutate(secret)
	}
	created, err := repo.Create(context.Background(), secret)
	require.NoError(t, err)
	return created
}

func TestSecretLedger_Validate(t *testing.T) {
	repo, database, project := setupLedger(t)
	ctx := context.Background()

	other := createTestProject(t, database, "Other")

	createSecret(t, repo, project.ID, "UNLIMITED", nil)
	createSecret(t, repo, project.ID, "FUTURE", func(s *domain.Secret) {
		s.ExpiresAt = timePtr(ledgerNow.Add(time.Hour))
	})
	createSecret(t, repo, project.ID, "PAST", func(s *domain.Secret) {
		s.ExpiresAt = timePtr(ledgerNow.Add(-time.Millisecond))
	})
	createSecret(t, repo, project.ID, "QUOTA-LEFT", func(s *domain.Secret) {
		s.MaxCalls = intPtr(3)
		s.CurrentCalls = 2
	})
	createSecret(t, repo, project.ID, "QUOTA-GONE", func(s *domain.Secret) {
		s.MaxCalls = intPtr(3)
		s.CurrentCalls = 3
	})
	createSecret(t, repo, project.ID, "ZERO-MAX", func(s *domain.Secret) {
		s.MaxCalls = intPtr(0)
		s.CurrentCalls = 500
	})
	createSecret(t, repo, other.ID, "OTHER-PROJECT", nil)

	tests := []struct {
		name      string
		value     string
		projectID int64
		valid     bool
	}{
		{"no limits", "UNLIMITED", project.ID, true},
		{"expires in the future", "FUTURE", project.ID, true},
		{"expired", "PAST", project.ID, false},
		{"quota remaining", "QUOTA-LEFT", project.ID, true},
		{"quota exhausted", "QUOTA-GONE", project.ID, false},
		{"zero max calls is unlimited", "ZERO-MAX", project.ID, true},
		{"wrong project", "OTHER-PROJECT", project.ID, false},
		{"unknown value", "NOPE", project.ID, false},
		{"empty value", "", project.ID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret, valid, err := repo.Validate(ctx, tt.value, tt.projectID)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
			if tt.valid {
				require.NotNil(t, secret)
				assert.Equal(t, tt.value, secret.Value)
			} else {
				assert.Nil(t, secret)
			}
		})
	}
}

func TestSecretLedger_ValidateLegacyExpiryMarkers(t *testing.T) {
	repo, database, project := setupLedger(t)
	ctx := context.Background()

	for value, expiresAt := range map[string]string{"ZERO": "0", "EMPTY": ""} {
		expires := expiresAt
		v := value
		err := database.Create(&db.SecretModel{
			Name:      "legacy-" + value,
			Value:     &v,
			ProjectID: &project.ID,
			ExpiresAt: &expires,
		}).Error
		require.NoError(t, err)
	}

	for _, value := range []string{"ZERO", "EMPTY"} {
		_, valid, err := repo.Validate(ctx, value, project.ID)
		require.NoError(t, err)
		assert.True(t, valid, value)
	}
}

func TestSecretLedger_ValidateDoesNotMutate(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "READONLY", func(s *domain.Secret) {
		s.MaxCalls = intPtr(1)
	})

	for range 3 {
		_, valid, err := repo.Validate(ctx, "READONLY", project.ID)
		require.NoError(t, err)
		assert.True(t, valid)
	}

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentCalls)
	assert.Nil(t, stored.LastUsedAt)
}

func TestSecretLedger_Consume(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "ONCE", func(s *domain.Secret) {
		s.MaxCalls = intPtr(1)
	})

	err := repo.Consume(ctx, created.ID)
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentCalls)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, ledgerNow.Equal(*stored.LastUsedAt))

	err = repo.Consume(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSecretUnavailable)

	stored, err = repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentCalls, "an exhausted secret must not be incremented")
}

func TestSecretLedger_ReserveAndRelease(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "TWICE", func(s *domain.Secret) {
		s.MaxCalls = intPtr(2)
	})

	reserved, err := repo.Reserve(ctx, "TWICE", project.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, reserved.ID)
	assert.Equal(t, 1, reserved.CurrentCalls)

	_, err = repo.Reserve(ctx, "TWICE", project.ID)
	require.NoError(t, err)

	_, err = repo.Reserve(ctx, "TWICE", project.ID)
	assert.ErrorIs(t, err, ErrSecretUnavailable)

	require.NoError(t, repo.Release(ctx, created.ID))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentCalls)

	_, err = repo.Reserve(ctx, "TWICE", project.ID)
	assert.NoError(t, err)
}

func TestSecretLedger_ReleaseNeverGoesNegative(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "FRESH", nil)

	require.NoError(t, repo.Release(ctx, created.ID))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentCalls)
}

func TestSecretLedger_ConcurrentReserveHonoursQuota(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "SINGLE", func(s *domain.Secret) {
		s.MaxCalls = intPtr(1)
	})

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Reserve(ctx, "SINGLE", project.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentCalls)
}

func TestSecretLedger_Provision(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	t.Run("monthly subscription", func(t *testing.T) {
		secret, err := domain.NewProvisionedSecret(project, "MONTH-LY", domain.OrderTypeMonthly, 3, "1-monthly-1-1", ledgerNow)
		require.NoError(t, err)

		created, err := repo.Provision(ctx, secret)
		require.NoError(t, err)

		require.NotNil(t, created.ExpiresAt)
		assert.WithinDuration(t, ledgerNow.AddDate(0, 3, 0), *created.ExpiresAt, time.Second)
		assert.Nil(t, created.MaxCalls)
		assert.Equal(t, 0, created.CurrentCalls)
		assert.Nil(t, created.LastUsedAt)
	})

	t.Run("per use", func(t *testing.T) {
		secret, err := domain.NewProvisionedSecret(project, "PER-USE", domain.OrderTypePerUse, 5, "1-per_use-1-2", ledgerNow)
		require.NoError(t, err)

		created, err := repo.Provision(ctx, secret)
		require.NoError(t, err)

		require.NotNil(t, created.MaxCalls)
		assert.Equal(t, 5, *created.MaxCalls)
		assert.Nil(t, created.ExpiresAt)
	})

	t.Run("duplicate order", func(t *testing.T) {
		first, err := domain.NewProvisionedSecret(project, "DUP-ONE", domain.OrderTypePerUse, 1, "1-per_use-1-3", ledgerNow)
		require.NoError(t, err)
		created, err := repo.Provision(ctx, first)
		require.NoError(t, err)

		second, err := domain.NewProvisionedSecret(project, "DUP-TWO", domain.OrderTypePerUse, 1, "1-per_use-1-3", ledgerNow)
		require.NoError(t, err)
		existing, err := repo.Provision(ctx, second)
		assert.ErrorIs(t, err, ErrDuplicateOrder)
		require.NotNil(t, existing)
		assert.Equal(t, created.ID, existing.ID)

		page, err := repo.List(ctx, SecretFilter{Name: ""})
		require.NoError(t, err)
		count := 0
		for _, s := range page.List {
			if s.OrderID != nil && *s.OrderID == "1-per_use-1-3" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestSecretRepository_ListFilters(t *testing.T) {
	repo, database, project := setupLedger(t)
	ctx := context.Background()
	other := createTestProject(t, database, "Other")

	createSecret(t, repo, project.ID, "A1", nil)
	createSecret(t, repo, project.ID, "A2", nil)
	createSecret(t, repo, other.ID, "B1", nil)

	page, err := repo.List(ctx, SecretFilter{ProjectID: &project.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.List, 2)

	page, err = repo.List(ctx, SecretFilter{Name: "B1"})
	require.NoError(t, err)
	require.Len(t, page.List, 1)
	assert.Equal(t, "B1", page.List[0].Value)

	page, err = repo.List(ctx, SecretFilter{ListOptions: ListOptions{Page: 2, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.List, 1)
	assert.Equal(t, "A1", page.List[0].Value, "pages are ordered newest first")
}

func TestSecretRepository_UpdateAndDelete(t *testing.T) {
	repo, _, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "EDIT", func(s *domain.Secret) {
		s.MaxCalls = intPtr(5)
		s.CurrentCalls = 5
	})

	// Admin reset
	created.CurrentCalls = 0
	created.ExpiresAt = timePtr(ledgerNow.AddDate(0, 1, 0))
	require.NoError(t, repo.Update(ctx, created))

	_, valid, err := repo.Validate(ctx, "EDIT", project.ID)
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, created.ID), gorm.ErrRecordNotFound)
}

func TestSecretRepository_DeletedWithProject(t *testing.T) {
	repo, database, project := setupLedger(t)
	ctx := context.Background()

	created := createSecret(t, repo, project.ID, "CASCADE", nil)

	projects := NewProjectRepository(database, setupTestEncryption(t))
	require.NoError(t, projects.Delete(ctx, project.ID))

	_, err := repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
