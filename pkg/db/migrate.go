package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/gorm"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to date under the migration lock. MySQL and
// PostgreSQL run the embedded versioned migrations; SQLite, used for
// development and tests, is created from the models by autoMigrate.
func Migrate(ctx context.Context, gormDB *gorm.DB, cfg *DBConfig, autoMigrate func() error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	locker := NewMigrationLocker(nil)
	if cfg.MigrationLock {
		locker = NewMigrationLocker(gormDB)
	}

	return locker.WithLock(ctx, func() error {
		switch cfg.Type {
		case TypeMySQL, TypePostgres:
			version, err := runMigrations(cfg)
			if err != nil {
				return err
			}
			logger.Info("database schema up to date", "type", cfg.Type, "version", version)
			return nil
		default:
			if autoMigrate == nil {
				return nil
			}
			if err := autoMigrate(); err != nil {
				return err
			}
			logger.Info("database schema auto-migrated", "type", cfg.Type)
			return nil
		}
	})
}

func runMigrations(cfg *DBConfig) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+cfg.Type)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s migrations: %w", cfg.Type, err)
	}

	sqlDB, driver, err := migrationDriver(cfg)
	if err != nil {
		return 0, err
	}
	defer sqlDB.Close()

	m, err := migrate.NewWithInstance("iofs", src, cfg.Type, driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", Classify(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// migrationDriver opens a connection dedicated to the migrator so that
// closing it leaves the application pool untouched.
func migrationDriver(cfg *DBConfig) (*sql.DB, database.Driver, error) {
	switch cfg.Type {
	case TypeMySQL:
		dsn, err := mysqlDSN(cfg.DSN, true)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mysql for migrations: %w", err)
		}
		driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
		if err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to create mysql migration driver: %w", Classify(err))
		}
		return sqlDB, driver, nil
	case TypePostgres:
		sqlDB, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres for migrations: %w", err)
		}
		driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
		if err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to create postgres migration driver: %w", Classify(err))
		}
		return sqlDB, driver, nil
	}
	return nil, nil, fmt.Errorf("no versioned migrations for database type %q", cfg.Type)
}
