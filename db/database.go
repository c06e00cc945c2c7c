package db

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured database and brings its schema up to date.
// For sqlite, dsn is the database file path.
func InitDB(driver, dsn string) (*gorm.DB, error) {
	slog.Debug("Initializing database", "driver", driver)

	cfg := DBConfig{
		Driver:   driver,
		LogLevel: getGormLogLevel(),
	}
	if driver == DriverMySQL {
		cfg.DSN = dsn
	} else {
		cfg.Path = dsn
	}

	db, err := InitDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := AutoMigrateAll(db); err != nil {
		slog.Error("Database operation failed",
			"layer", "database",
			"operation", "migrate",
			"error", err)
		return nil, err
	}

	slog.Debug("Database initialized successfully", "driver", driver)
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// getGormLogLevel maps application log level to corresponding GORM log level
func getGormLogLevel() logger.LogLevel {
	l := slog.Default()

	if l.Enabled(context.TODO(), slog.LevelDebug) {
		return logger.Info // SQL queries only with debug logging
	} else if l.Enabled(context.TODO(), slog.LevelInfo) {
		return logger.Warn
	} else if l.Enabled(context.TODO(), slog.LevelWarn) {
		return logger.Warn
	} else if l.Enabled(context.TODO(), slog.LevelError) {
		return logger.Error
	} else {
		return logger.Silent
	}
}
