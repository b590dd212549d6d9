package db

import (
	"context"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	cfg := DefaultDBConfig()
	cfg.DSN = ":memory:"
	cfg.LogLevel = "silent"

	gormDB, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, TypeSQLite, gormDB.Dialector.Name())

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, sqlDB.PingContext(context.Background()))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(&DBConfig{Type: TypeSQLite})
	assert.ErrorContains(t, err, "DSN is required")

	_, err = Open(&DBConfig{Type: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Open(&DBConfig{Type: TypeMySQL, DSN: "not a dsn"})
	assert.ErrorContains(t, err, "invalid mysql DSN")
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN("pallet:secret@tcp(db:3306)/pallets?charset=utf8mb4", false)
	require.NoError(t, err)
	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, parsed.ParseTime)
	assert.False(t, parsed.MultiStatements)
	assert.Equal(t, "pallets", parsed.DBName)
	assert.Equal(t, "db:3306", parsed.Addr)

	dsn, err = mysqlDSN("pallet:secret@tcp(db:3306)/pallets", true)
	require.NoError(t, err)
	parsed, err = gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, parsed.MultiStatements)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Error, logLevel("ERROR"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
	assert.Equal(t, logger.Warn, logLevel("chatty"))
}
