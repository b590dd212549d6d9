package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the response cache.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests reach the database.
	Enabled bool

	// ReferenceTTL is the TTL for the client and article lists.
	ReferenceTTL time.Duration

	// StatsTTL is the TTL for the per-status counters and inactivity alerts.
	StatsTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:      true,
		ReferenceTTL: 5 * time.Minute,
		StatsTTL:     30 * time.Second,
		MaxSize:      500,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - PALLET_CACHE_ENABLED: "true" or "false" (default: "true")
//   - PALLET_CACHE_REFERENCE_TTL: seconds (default: 300)
//   - PALLET_CACHE_STATS_TTL: seconds (default: 30)
//   - PALLET_CACHE_MAX_SIZE: max entries per cache (default: 500)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("PALLET_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PALLET_CACHE_REFERENCE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.ReferenceTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("PALLET_CACHE_STATS_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.StatsTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("PALLET_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
