package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a named shared-cache in-memory database so that every
// goroutine of one test sees the same tables.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}

func TestNewMigrationLocker_Strategy(t *testing.T) {
	assert.IsType(t, noopMigrationLock{}, NewMigrationLocker(nil))
	assert.IsType(t, &tableMigrationLock{}, NewMigrationLocker(newTestDB(t)))
}

func TestNoopMigrationLock(t *testing.T) {
	called := false
	err := NewMigrationLocker(nil).WithLock(context.Background(), func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestTableMigrationLock_ReleasesAfterRun(t *testing.T) {
	gormDB := newTestDB(t)
	locker := NewMigrationLocker(gormDB)

	called := false
	err := locker.WithLock(context.Background(), func() error {
		called = true
		var count int64
		gormDB.Model(&migrationLockRecord{}).Count(&count)
		assert.Equal(t, int64(1), count, "lock row is held while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	var count int64
	gormDB.Model(&migrationLockRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestTableMigrationLock_PropagatesError(t *testing.T) {
	gormDB := newTestDB(t)
	locker := NewMigrationLocker(gormDB)

	want := errors.New("migration failed")
	err := locker.WithLock(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)

	var count int64
	gormDB.Model(&migrationLockRecord{}).Count(&count)
	assert.Zero(t, count, "lock is released after a failed run")
}

func TestTableMigrationLock_Serialises(t *testing.T) {
	gormDB := newTestDB(t)
	locker := NewMigrationLocker(gormDB)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(context.Background(), func() error {
				cur := current.Add(1)
				for {
					prev := peak.Load()
					if cur <= prev || peak.CompareAndSwap(prev, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(1))
}

func TestTableMigrationLock_ContextCancelled(t *testing.T) {
	gormDB := newTestDB(t)
	locker := NewMigrationLocker(gormDB)

	err := locker.WithLock(context.Background(), func() error {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		inner := locker.WithLock(ctx, func() error {
			t.Error("lock acquired twice")
			return nil
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
}

func TestTableMigrationLock_ClearsStaleRow(t *testing.T) {
	gormDB := newTestDB(t)
	locker := NewMigrationLocker(gormDB)

	stale := migrationLockRecord{ID: "migration", LockedBy: "crashed", LockedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, gormDB.Create(&stale).Error)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	called := false
	require.NoError(t, locker.WithLock(ctx, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
