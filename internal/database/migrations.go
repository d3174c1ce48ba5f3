package database

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB, dialect, migrationsDir string, logger *zap.Logger) error {
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	logger.Info("Checking for pending migrations...",
		zap.String("dir", migrationsDir),
		zap.String("dialect", dialect),
	)

	if err := goose.Up(db, migrationsDir); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations completed successfully")
	return nil
}

// MigrationVersion returns the version of the last applied migration
func MigrationVersion(db *sql.DB, dialect string) (int64, error) {
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}
