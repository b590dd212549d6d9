// Package db opens the relational store behind the pallet repository and
// owns its schema: connection pooling, driver error classification,
// versioned migrations and the lock that serialises them across replicas.
package db

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported database types.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// DBConfig controls the connection to the relational store.
type DBConfig struct {
	Type            string        // mysql, postgres or sqlite. Default sqlite.
	DSN             string        // Driver-specific connection string.
	MaxOpenConns    int           // Pool size. Default 10.
	MaxIdleConns    int           // Idle connections kept. Default 5.
	ConnMaxLifetime time.Duration // Connection recycle age. Default 30m.
	LogLevel        string        // gorm log level: silent, error, warn, info. Default warn.
	MigrationLock   bool          // Serialise migrations across replicas. Default true.
}

// DefaultDBConfig returns the default database configuration.
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		Type:            TypeSQLite,
		DSN:             "pallets.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		LogLevel:        "warn",
		MigrationLock:   true,
	}
}

// DBConfigFromEnv loads config from environment variables.
// PALLET_DB_TYPE, PALLET_DB_DSN, PALLET_DB_MAX_OPEN_CONNS, PALLET_DB_MAX_IDLE_CONNS,
// PALLET_DB_CONN_MAX_LIFETIME_MINUTES, PALLET_DB_LOG_LEVEL, PALLET_DB_MIGRATION_LOCK
func DBConfigFromEnv() *DBConfig {
	cfg := DefaultDBConfig()

	if v := os.Getenv("PALLET_DB_TYPE"); v != "" {
		cfg.Type = strings.ToLower(v)
	}
	if v := os.Getenv("PALLET_DB_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("PALLET_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOpenConns = n
		}
	}
	if v := os.Getenv("PALLET_DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxIdleConns = n
		}
	}
	if v := os.Getenv("PALLET_DB_CONN_MAX_LIFETIME_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConnMaxLifetime = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("PALLET_DB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PALLET_DB_MIGRATION_LOCK"); v != "" {
		cfg.MigrationLock = strings.EqualFold(v, "true") || v == "1"
	}

	return cfg
}
