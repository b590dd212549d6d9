package db

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLiteUsesAutoMigrate(t *testing.T) {
	gormDB := newTestDB(t)
	cfg := DefaultDBConfig()

	calls := 0
	err := Migrate(context.Background(), gormDB, cfg, func() error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	want := errors.New("boom")
	err = Migrate(context.Background(), gormDB, cfg, func() error { return want }, nil)
	assert.ErrorIs(t, err, want)
}

func TestMigrate_WithoutLock(t *testing.T) {
	gormDB := newTestDB(t)
	cfg := DefaultDBConfig()
	cfg.MigrationLock = false

	require.NoError(t, Migrate(context.Background(), gormDB, cfg, nil, nil))
	assert.False(t, gormDB.Migrator().HasTable(&migrationLockRecord{}))
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dialect := range []string{TypeMySQL, TypePostgres} {
		entries, err := fs.ReadDir(migrationsFS, "migrations/"+dialect)
		require.NoError(t, err, dialect)

		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.Contains(t, names, "000001_pallet_tables.up.sql", dialect)
		assert.Contains(t, names, "000001_pallet_tables.down.sql", dialect)

		up, err := fs.ReadFile(migrationsFS, "migrations/"+dialect+"/000001_pallet_tables.up.sql")
		require.NoError(t, err)
		for _, table := range []string{"InfoPalette", "STT_Palette", "MVT_Palette", "EmplacementEntrepot", "SPR_Palette", "Users"} {
			assert.Contains(t, string(up), table, dialect)
		}
	}
}

func TestRunMigrations_UnsupportedType(t *testing.T) {
	_, err := runMigrations(&DBConfig{Type: TypeSQLite, DSN: ":memory:"})
	assert.Error(t, err)
}
