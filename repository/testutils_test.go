package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.InitDatabase(db.DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	err = db.AutoMigrateAll(database)
	require.NoError(t, err)

	return database
}

// setupTestEncryption creates a test encryption service
func setupTestEncryption(t *testing.T) *encryption.EncryptionService {
	t.Helper()
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	svc, err := encryption.NewEncryptionService(key)
	require.NoError(t, err)
	return svc
}

func createTestProject(t *testing.T, database *gorm.DB, name string) *domain.Project {
	t.Helper()
	repo := NewProjectRepository(database, setupTestEncryption(t))
	project, err := repo.Create(context.Background(), &domain.Project{
		Name:        name,
		Description: "test project",
		DeployMethods: []domain.DeployMethod{
			{Type: "static", Commands: []string{"npm run build"}, Outputs: []string{"dist"}},
		},
	})
	require.NoError(t, err)
	return project
}

func intPtr(v int) *int {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
