package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Driver-independent error classes. Classify wraps driver errors so that
// they match one of these with errors.Is while keeping the original cause.
var (
	ErrDuplicate  = errors.New("duplicate key")
	ErrConnection = errors.New("database unavailable")
)

// MySQL server error numbers.
const (
	mysqlDuplicateEntry    = 1062
	mysqlTooManyConns      = 1040
	mysqlAccessDenied      = 1045
	mysqlServerShutdown    = 1053
	mysqlLockWaitTimeout   = 1205
	mysqlDeadlock          = 1213
	mysqlConnectionRefused = 2003
)

// Classify maps a driver error onto ErrDuplicate or ErrConnection where it
// recognises one, and returns other errors unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConnection) {
		return err
	}
	switch {
	case isDuplicate(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case isConnection(err):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

// IsDuplicate reports whether err is a unique or primary key violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate) || isDuplicate(err)
}

// IsConnection reports whether err means the database could not be reached.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection) || isConnection(err)
}

// IsRetryable reports whether the transaction may succeed if run again.
func IsRetryable(err error) bool {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func isConnection(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlTooManyConns, mysqlAccessDenied, mysqlServerShutdown, mysqlConnectionRefused:
			return true
		}
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-03: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.Timeout(err)
}
