// Package archive moves aged-out pallets into SPR_Palette, restores them on
// demand and expires archive rows after the retention period.
package archive

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Retention bounds in years.
const (
	MinRetentionYears = 1
	MaxRetentionYears = 20
)

// MaxPurgeAfterDays caps the purge age at one hundred years.
const MaxPurgeAfterDays = 36500

// ArchiveConfig controls purge and archive retention.
type ArchiveConfig struct {
	PurgeStatuses  []string      // Default Détruite, En prod, Renvoyé
	PurgeAfterDays int           // Default 90
	RetentionYears int           // Default 3, accepted 1 to 20
	WorkerEnabled  bool          // Default false
	WorkerInterval time.Duration // Default 24h
	ExportDir      string        // Local export directory for expired archive rows
	S3             S3Config      // Used when S3.Bucket is set
}

// DefaultArchiveConfig returns the default configuration.
func DefaultArchiveConfig() *ArchiveConfig {
	statuses := make([]string, len(pallet.TerminalStatuses))
	for i, s := range pallet.TerminalStatuses {
		statuses[i] = string(s)
	}
	return &ArchiveConfig{
		PurgeStatuses:  statuses,
		PurgeAfterDays: 90,
		RetentionYears: 3,
		WorkerInterval: 24 * time.Hour,
	}
}

// ArchiveConfigFromEnv loads config from environment variables.
// PALLET_ARCHIVE_PURGE_STATUSES (comma separated), PALLET_ARCHIVE_PURGE_AFTER_DAYS,
// PALLET_ARCHIVE_RETENTION_YEARS, PALLET_ARCHIVE_WORKER_ENABLED,
// PALLET_ARCHIVE_WORKER_INTERVAL, PALLET_ARCHIVE_EXPORT_DIR,
// PALLET_ARCHIVE_S3_BUCKET, PALLET_ARCHIVE_S3_REGION, PALLET_ARCHIVE_S3_ENDPOINT,
// PALLET_ARCHIVE_S3_PREFIX, PALLET_ARCHIVE_S3_PATH_STYLE
func ArchiveConfigFromEnv() *ArchiveConfig {
	cfg := DefaultArchiveConfig()

	if v := os.Getenv("PALLET_ARCHIVE_PURGE_STATUSES"); v != "" {
		var statuses []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
		cfg.PurgeStatuses = statuses
	}
	if v := os.Getenv("PALLET_ARCHIVE_PURGE_AFTER_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.PurgeAfterDays = days
		}
	}
	if v := os.Getenv("PALLET_ARCHIVE_RETENTION_YEARS"); v != "" {
		if years, err := strconv.Atoi(v); err == nil {
			cfg.RetentionYears = years
		}
	}
	if v := os.Getenv("PALLET_ARCHIVE_WORKER_ENABLED"); v != "" {
		cfg.WorkerEnabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("PALLET_ARCHIVE_WORKER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WorkerInterval = d
		}
	}
	cfg.ExportDir = os.Getenv("PALLET_ARCHIVE_EXPORT_DIR")
	cfg.S3 = S3Config{
		Bucket:    os.Getenv("PALLET_ARCHIVE_S3_BUCKET"),
		Region:    os.Getenv("PALLET_ARCHIVE_S3_REGION"),
		Endpoint:  os.Getenv("PALLET_ARCHIVE_S3_ENDPOINT"),
		Prefix:    os.Getenv("PALLET_ARCHIVE_S3_PREFIX"),
		PathStyle: strings.EqualFold(os.Getenv("PALLET_ARCHIVE_S3_PATH_STYLE"), "true"),
	}

	return cfg
}

// Validate checks the status list and the retention range.
func (c *ArchiveConfig) Validate() error {
	if _, err := c.Statuses(); err != nil {
		return fmt.Errorf("archive purge statuses: %w", err)
	}
	if c.PurgeAfterDays <= 0 {
		return fmt.Errorf("archive purge age must be positive, got %d days", c.PurgeAfterDays)
	}
	if err := ValidatePurgeDays(c.PurgeAfterDays); err != nil {
		return err
	}
	if err := ValidateRetentionYears(c.RetentionYears); err != nil {
		return err
	}
	return nil
}

// Statuses returns the purge status set.
func (c *ArchiveConfig) Statuses() (mapset.Set[pallet.Status], error) {
	return pallet.ParseStatuses(c.PurgeStatuses)
}

// PurgeAge is the minimum time since the last status change before a pallet
// is archived.
func (c *ArchiveConfig) PurgeAge() time.Duration {
	return PurgeAge(c.PurgeAfterDays)
}

// PurgeAge converts a purge age in days to a duration. Call
// ValidatePurgeDays first; out-of-range values are clamped.
func PurgeAge(days int) time.Duration {
	days = min(max(days, 0), MaxPurgeAfterDays)
	return time.Duration(days) * 24 * time.Hour
}

// ValidatePurgeDays rejects purge ages outside 0 to MaxPurgeAfterDays days.
func ValidatePurgeDays(days int) error {
	if days < 0 || days > MaxPurgeAfterDays {
		return &pallet.ValidationError{
			Field:   "olderThanDays",
			Message: fmt.Sprintf("purge age must be between 0 and %d days, got %d", MaxPurgeAfterDays, days),
		}
	}
	return nil
}

// RetentionAge is how long archive rows are kept.
func (c *ArchiveConfig) RetentionAge() time.Duration {
	return RetentionAge(c.RetentionYears)
}

// RetentionAge converts a retention in years to a duration of 365-day years.
func RetentionAge(years int) time.Duration {
	years = min(max(years, 0), MaxRetentionYears)
	return time.Duration(years) * 365 * 24 * time.Hour
}

// ValidateRetentionYears rejects retention periods outside 1 to 20 years.
func ValidateRetentionYears(years int) error {
	if years < MinRetentionYears || years > MaxRetentionYears {
		return &pallet.ValidationError{
			Field:   "years",
			Message: fmt.Sprintf("retention must be between %d and %d years, got %d", MinRetentionYears, MaxRetentionYears, years),
		}
	}
	return nil
}
