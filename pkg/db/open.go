package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and applies the pool settings.
func Open(cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultDBConfig()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (set PALLET_DB_DSN)")
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, Classify(err))
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.Type == TypeSQLite && strings.Contains(cfg.DSN, ":memory:") {
		// Each connection to an in-memory database sees its own copy.
		sqlDB.SetMaxOpenConns(1)
	}

	return gormDB, nil
}

func dialectorFor(cfg *DBConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case TypeMySQL:
		dsn, err := mysqlDSN(cfg.DSN, false)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case TypePostgres:
		return postgres.Open(cfg.DSN), nil
	case TypeSQLite, "":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database type %q (expected mysql, postgres or sqlite)", cfg.Type)
}

// mysqlDSN normalises a go-sql-driver DSN: times are always parsed into
// time.Time and, for migrations, several statements may share one Exec.
func mysqlDSN(dsn string, multiStatements bool) (string, error) {
	mc, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	mc.ParseTime = true
	if multiStatements {
		mc.MultiStatements = true
	}
	return mc.FormatDSN(), nil
}

func logLevel(v string) logger.LogLevel {
	switch strings.ToLower(v) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}
