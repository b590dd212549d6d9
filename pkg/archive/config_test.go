package archive

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

func TestDefaultArchiveConfig(t *testing.T) {
	cfg := DefaultArchiveConfig()
	require.NoError(t, cfg.Validate())

	statuses, err := cfg.Statuses()
	require.NoError(t, err)
	assert.True(t, statuses.Contains(pallet.StatusDestroyed, pallet.StatusInProduction, pallet.StatusReturned))
	assert.Equal(t, 3, statuses.Cardinality())
	assert.Equal(t, 90*24*time.Hour, cfg.PurgeAge())
	assert.Equal(t, 3*365*24*time.Hour, cfg.RetentionAge())
	assert.False(t, cfg.WorkerEnabled)
}

func TestArchiveConfigFromEnv(t *testing.T) {
	t.Setenv("PALLET_ARCHIVE_PURGE_STATUSES", "Destroyed, Renvoyé ,")
	t.Setenv("PALLET_ARCHIVE_PURGE_AFTER_DAYS", "30")
	t.Setenv("PALLET_ARCHIVE_RETENTION_YEARS", "5")
	t.Setenv("PALLET_ARCHIVE_WORKER_ENABLED", "true")
	t.Setenv("PALLET_ARCHIVE_WORKER_INTERVAL", "6h")
	t.Setenv("PALLET_ARCHIVE_EXPORT_DIR", "/var/lib/pallets/exports")
	t.Setenv("PALLET_ARCHIVE_S3_BUCKET", "archive")
	t.Setenv("PALLET_ARCHIVE_S3_PATH_STYLE", "TRUE")

	cfg := ArchiveConfigFromEnv()
	assert.Equal(t, []string{"Destroyed", "Renvoyé"}, cfg.PurgeStatuses)
	assert.Equal(t, 30, cfg.PurgeAfterDays)
	assert.Equal(t, 5, cfg.RetentionYears)
	assert.True(t, cfg.WorkerEnabled)
	assert.Equal(t, 6*time.Hour, cfg.WorkerInterval)
	assert.Equal(t, "/var/lib/pallets/exports", cfg.ExportDir)
	assert.Equal(t, "archive", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)
	assert.NoError(t, cfg.Validate())
}

func TestArchiveConfigFromEnv_IgnoresInvalid(t *testing.T) {
	t.Setenv("PALLET_ARCHIVE_PURGE_AFTER_DAYS", "-4")
	t.Setenv("PALLET_ARCHIVE_WORKER_INTERVAL", "soon")

	cfg := ArchiveConfigFromEnv()
	assert.Equal(t, 90, cfg.PurgeAfterDays)
	assert.Equal(t, 24*time.Hour, cfg.WorkerInterval)
}

func TestArchiveConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ArchiveConfig)
	}{
		{"unknown status", func(c *ArchiveConfig) { c.PurgeStatuses = []string{"Perdue"} }},
		{"zero purge age", func(c *ArchiveConfig) { c.PurgeAfterDays = 0 }},
		{"retention too short", func(c *ArchiveConfig) { c.RetentionYears = 0 }},
		{"retention too long", func(c *ArchiveConfig) { c.RetentionYears = 21 }},
		{"purge age too long", func(c *ArchiveConfig) { c.PurgeAfterDays = MaxPurgeAfterDays + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultArchiveConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRetentionYears(t *testing.T) {
	assert.NoError(t, ValidateRetentionYears(1))
	assert.NoError(t, ValidateRetentionYears(20))
	assert.ErrorIs(t, ValidateRetentionYears(25), pallet.ErrValidation)
}

func TestPurgeAge(t *testing.T) {
	assert.NoError(t, ValidatePurgeDays(0))
	assert.NoError(t, ValidatePurgeDays(MaxPurgeAfterDays))
	assert.ErrorIs(t, ValidatePurgeDays(-1), pallet.ErrValidation)
	assert.ErrorIs(t, ValidatePurgeDays(213504), pallet.ErrValidation)

	assert.Equal(t, 90*24*time.Hour, PurgeAge(90))
	assert.Equal(t, MaxPurgeAfterDays*24*time.Hour, PurgeAge(213504))
	assert.Positive(t, PurgeAge(math.MaxInt))
	assert.Zero(t, PurgeAge(-5))
}
