package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration represents a single database migration
type Migration struct {
	ID   int
	Name string
	Up   func(*gorm.DB) error
}

// allMigrations is the ordered list of all migrations.
// They run before AutoMigrate, so each must tolerate a database where its table does not exist yet.
var allMigrations = []Migration{
	{
		ID:   1,
		Name: "0001_backfill_secret_current_calls",
		Up:   migration0001BackfillSecretCurrentCalls,
	},
	{
		ID:   2,
		Name: "0002_normalize_secret_timestamps",
		Up:   migration0002NormalizeSecretTimestamps,
	},
}

// AllModels returns all the models that need to be migrated
func AllModels() []any {
	return []any{
		&MigrationModel{},
		&WorkflowModel{},
		&ProjectModel{},
		&SecretModel{},
		&TaskModel{},
	}
}

// AutoMigrateAll runs manual migrations and then auto-migration for all application models
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(&MigrationModel{}); err != nil {
		return err
	}

	if err := RunMigrations(db, len(allMigrations)); err != nil {
		return err
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}

	return nil
}

// RunMigrations runs all migrations up to and including the specified ID.
// If targetID is 0 or negative, all migrations are run.
func RunMigrations(db *gorm.DB, targetID int) error {
	if targetID <= 0 {
		targetID = len(allMigrations)
	}

	for _, migration := range allMigrations {
		if migration.ID > targetID {
			break
		}

		applied, err := migrationApplied(db, migration.Name)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", migration.Name, err)
		}
		if applied {
			continue
		}

		if err := migration.Up(db); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}

		if err := recordMigration(db, migration.Name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
		}
	}

	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var count int64
	err := db.Model(&MigrationModel{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *gorm.DB, name string) error {
	migration := MigrationModel{
		Name:      name,
		AppliedAt: time.Now(),
	}
	return db.Create(&migration).Error
}

// CreateSchemaAtMigration creates the schema as it existed at a specific migration version.
// migrationID 0 is the legacy schema bygga adopts from existing deployments.
func CreateSchemaAtMigration(db *gorm.DB, migrationID int) error {
	if err := db.AutoMigrate(&MigrationModel{}); err != nil {
		return err
	}

	if err := createInitialSchema(db); err != nil {
		return err
	}

	if migrationID > 0 {
		return RunMigrations(db, migrationID)
	}

	return nil
}

// createInitialSchema creates the legacy sqlite schema: text timestamps, nullable counters, no order ids
func createInitialSchema(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			repo_owner TEXT NOT NULL,
			repo_name TEXT NOT NULL,
			workflow_file TEXT NOT NULL,
			branch TEXT NOT NULL,
			github_token TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			repo_owner TEXT,
			repo_name TEXT,
			preview TEXT,
			workflow_id INTEGER REFERENCES workflows(id),
			deploy_methods TEXT,
			environment TEXT,
			pricing TEXT,
			payment_config TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			value TEXT,
			description TEXT,
			project_id INTEGER REFERENCES projects(id),
			current_calls INTEGER DEFAULT 0,
			max_calls INTEGER,
			expires_at TEXT,
			last_used_at TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER REFERENCES projects(id),
			run_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migration0001BackfillSecretCurrentCalls replaces NULL call counters with 0
func migration0001BackfillSecretCurrentCalls(db *gorm.DB) error {
	if !db.Migrator().HasTable(&SecretModel{}) {
		return nil
	}
	return db.Exec("UPDATE secrets SET current_calls = 0 WHERE current_calls IS NULL").Error
}

// migration0002NormalizeSecretTimestamps rewrites second-precision timestamps
// (2006-01-02T15:04:05Z) to the fixed-width millisecond layout so text comparison stays chronological
func migration0002NormalizeSecretTimestamps(db *gorm.DB) error {
	if !db.Migrator().HasTable(&SecretModel{}) {
		return nil
	}

	concat := "substr(%[1]s, 1, 19) || '.000Z'"
	if db.Dialector.Name() == DriverMySQL {
		concat = "CONCAT(SUBSTRING(%[1]s, 1, 19), '.000Z')"
	}

	for _, column := range []string{"expires_at", "last_used_at"} {
		stmt := fmt.Sprintf("UPDATE secrets SET %[1]s = "+concat+" WHERE LENGTH(%[1]s) = 20 AND %[1]s LIKE '%%Z'", column)
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
