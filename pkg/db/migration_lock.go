package db

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "pallet-registry-migration"

// MigrationLocker serialises schema changes when several pallet-server
// replicas start against the same database.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker picks the lock strategy for the dialect: advisory locks
// on PostgreSQL, named locks on MySQL and a lock table elsewhere.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	switch db.Dialector.Name() {
	case TypePostgres:
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName))),
		}
	case TypeMySQL:
		return &mysqlNamedLock{db: db, name: migrationLockName, timeout: 60 * time.Second}
	}
	// Create the lock table up front so that concurrent first callers never
	// race on it.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{db: db}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock holds a session advisory lock on one pinned connection.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("failed to acquire migration advisory lock: %w", err)
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", l.lockID)
		return fn()
	})
}

// mysqlNamedLock uses GET_LOCK, which is also bound to the session.
type mysqlNamedLock struct {
	db      *gorm.DB
	name    string
	timeout time.Duration
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got sql.NullInt64
		err := conn.Raw("SELECT GET_LOCK(?, ?)", l.name, int(l.timeout.Seconds())).Scan(&got).Error
		if err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !got.Valid || got.Int64 != 1 {
			return fmt.Errorf("timed out after %s waiting for migration lock", l.timeout)
		}
		defer conn.Exec("SELECT RELEASE_LOCK(?)", l.name)
		return fn()
	})
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock inserts a single well-known row and treats a duplicate
// key as "held". Rows older than staleAge are removed so that a crashed
// holder cannot block start-up forever.
type tableMigrationLock struct {
	db *gorm.DB
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	row := migrationLockRecord{ID: "migration", LockedBy: hostname}

	const (
		maxRetries    = 30
		retryInterval = time.Second
		staleAge      = 5 * time.Minute
	)

	for i := 0; ; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", row.ID, time.Now().Add(-staleAge)).
			Delete(&migrationLockRecord{})

		row.LockedAt = time.Now()
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			return fmt.Errorf("failed to acquire migration lock after %d retries: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	defer l.db.Where("id = ?", row.ID).Delete(&migrationLockRecord{})

	return fn()
}
