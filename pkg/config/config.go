// Package config assembles the server configuration from defaults, PALLET_*
// environment variables, an optional YAML file and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/solaius/pallet-registry/pkg/archive"
	"github.com/solaius/pallet-registry/pkg/auth"
	"github.com/solaius/pallet-registry/pkg/cache"
	"github.com/solaius/pallet-registry/pkg/db"
	"github.com/solaius/pallet-registry/pkg/tracing"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        // Default :8080
	LogLevel        string        // debug, info, warn or error. Default info.
	ShutdownTimeout time.Duration // Default 30s
}

// DefaultServerConfig returns the default listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Listen: ":8080", LogLevel: "info", ShutdownTimeout: 30 * time.Second}
}

// ServerConfigFromEnv loads config from environment variables.
// PALLET_SERVER_LISTEN, PALLET_SERVER_LOG_LEVEL, PALLET_SERVER_SHUTDOWN_TIMEOUT
func ServerConfigFromEnv() ServerConfig {
	cfg := DefaultServerConfig()
	if v := os.Getenv("PALLET_SERVER_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PALLET_SERVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PALLET_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := parseDuration(v, time.Second); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		}
	}
	return cfg
}

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig
	DB      *db.DBConfig
	Auth    *auth.AuthConfig
	Archive *archive.ArchiveConfig
	Cache   *cache.CacheConfig
	Tracing tracing.Config
}

// FromEnv returns defaults overlaid with environment variables.
func FromEnv() *Config {
	return &Config{
		Server:  ServerConfigFromEnv(),
		DB:      db.DBConfigFromEnv(),
		Auth:    auth.AuthConfigFromEnv(),
		Archive: archive.ArchiveConfigFromEnv(),
		Cache:   cache.CacheConfigFromEnv(),
		Tracing: tracing.ConfigFromEnv(),
	}
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML configuration file (env PALLET_CONFIG)")
	fs.String("listen", "", "HTTP listen address")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("db-type", "", "Database type: sqlite, mysql or postgres")
	fs.String("db-dsn", "", "Database connection string")
	fs.String("otlp-endpoint", "", "OTLP/HTTP collector host:port")
	fs.Bool("archive-worker", false, "Run the background retention worker")
}

// Load builds the configuration. fs may be nil; otherwise it must have been
// populated by RegisterFlags and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := FromEnv()

	path := os.Getenv("PALLET_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}
	if path != "" {
		file := viper.New()
		file.SetConfigFile(path)
		if err := file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.apply(file, true); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if fs != nil {
		flags := viper.New()
		for _, b := range bindings {
			if b.flag == "" {
				continue
			}
			if f := fs.Lookup(b.flag); f != nil {
				if err := flags.BindPFlag(b.key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", b.flag, err)
				}
			}
		}
		if err := cfg.apply(flags, false); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.DB.Type {
	case db.TypeSQLite, db.TypeMySQL, db.TypePostgres:
	default:
		return fmt.Errorf("unsupported database type %q", c.DB.Type)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (PALLET_AUTH_SECRET or auth.secret)")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}
	return c.Archive.Validate()
}

// apply copies every key set in v. With respectEnv, keys whose environment
// variable is set are left alone so the environment wins over the file.
func (c *Config) apply(v *viper.Viper, respectEnv bool) error {
	for _, b := range bindings {
		if !v.IsSet(b.key) {
			continue
		}
		if respectEnv {
			if _, ok := os.LookupEnv(b.env); ok {
				continue
			}
		}
		if err := b.set(c, v.Get(b.key)); err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
	}
	return nil
}

type binding struct {
	key  string
	env  string
	flag string
	set  func(c *Config, raw any) error
}

var bindings = []binding{
	{"server.listen", "PALLET_SERVER_LISTEN", "listen", str(func(c *Config) *string { return &c.Server.Listen })},
	{"server.log_level", "PALLET_SERVER_LOG_LEVEL", "log-level", str(func(c *Config) *string { return &c.Server.LogLevel })},
	{"server.shutdown_timeout", "PALLET_SERVER_SHUTDOWN_TIMEOUT", "", dur(time.Second, func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},

	{"db.type", "PALLET_DB_TYPE", "db-type", str(func(c *Config) *string { return &c.DB.Type })},
	{"db.dsn", "PALLET_DB_DSN", "db-dsn", str(func(c *Config) *string { return &c.DB.DSN })},
	{"db.max_open_conns", "PALLET_DB_MAX_OPEN_CONNS", "", integer(func(c *Config) *int { return &c.DB.MaxOpenConns })},
	{"db.max_idle_conns", "PALLET_DB_MAX_IDLE_CONNS", "", integer(func(c *Config) *int { return &c.DB.MaxIdleConns })},
	{"db.conn_max_lifetime", "PALLET_DB_CONN_MAX_LIFETIME_MINUTES", "", dur(time.Minute, func(c *Config) *time.Duration { return &c.DB.ConnMaxLifetime })},
	{"db.log_level", "PALLET_DB_LOG_LEVEL", "", str(func(c *Config) *string { return &c.DB.LogLevel })},
	{"db.migration_lock", "PALLET_DB_MIGRATION_LOCK", "", boolean(func(c *Config) *bool { return &c.DB.MigrationLock })},

	{"auth.secret", "PALLET_AUTH_SECRET", "", str(func(c *Config) *string { return &c.Auth.Secret })},
	{"auth.issuer", "PALLET_AUTH_ISSUER", "", str(func(c *Config) *string { return &c.Auth.Issuer })},
	{"auth.token_ttl", "PALLET_AUTH_TOKEN_TTL_MINUTES", "", dur(time.Minute, func(c *Config) *time.Duration { return &c.Auth.TokenTTL })},
	{"auth.login_per_minute", "PALLET_AUTH_LOGIN_PER_MINUTE", "", integer(func(c *Config) *int { return &c.Auth.LoginPerMinute })},
	{"auth.login_burst", "PALLET_AUTH_LOGIN_BURST", "", integer(func(c *Config) *int { return &c.Auth.LoginBurst })},

	{"archive.purge_statuses", "PALLET_ARCHIVE_PURGE_STATUSES", "", list(func(c *Config) *[]string { return &c.Archive.PurgeStatuses })},
	{"archive.purge_after_days", "PALLET_ARCHIVE_PURGE_AFTER_DAYS", "", integer(func(c *Config) *int { return &c.Archive.PurgeAfterDays })},
	{"archive.retention_years", "PALLET_ARCHIVE_RETENTION_YEARS", "", integer(func(c *Config) *int { return &c.Archive.RetentionYears })},
	{"archive.worker_enabled", "PALLET_ARCHIVE_WORKER_ENABLED", "archive-worker", boolean(func(c *Config) *bool { return &c.Archive.WorkerEnabled })},
	{"archive.worker_interval", "PALLET_ARCHIVE_WORKER_INTERVAL", "", dur(time.Second, func(c *Config) *time.Duration { return &c.Archive.WorkerInterval })},
	{"archive.export_dir", "PALLET_ARCHIVE_EXPORT_DIR", "", str(func(c *Config) *string { return &c.Archive.ExportDir })},
	{"archive.s3.bucket", "PALLET_ARCHIVE_S3_BUCKET", "", str(func(c *Config) *string { return &c.Archive.S3.Bucket })},
	{"archive.s3.region", "PALLET_ARCHIVE_S3_REGION", "", str(func(c *Config) *string { return &c.Archive.S3.Region })},
	{"archive.s3.endpoint", "PALLET_ARCHIVE_S3_ENDPOINT", "", str(func(c *Config) *string { return &c.Archive.S3.Endpoint })},
	{"archive.s3.prefix", "PALLET_ARCHIVE_S3_PREFIX", "", str(func(c *Config) *string { return &c.Archive.S3.Prefix })},
	{"archive.s3.path_style", "PALLET_ARCHIVE_S3_PATH_STYLE", "", boolean(func(c *Config) *bool { return &c.Archive.S3.PathStyle })},

	{"cache.enabled", "PALLET_CACHE_ENABLED", "", boolean(func(c *Config) *bool { return &c.Cache.Enabled })},
	{"cache.reference_ttl", "PALLET_CACHE_REFERENCE_TTL", "", dur(time.Second, func(c *Config) *time.Duration { return &c.Cache.ReferenceTTL })},
	{"cache.stats_ttl", "PALLET_CACHE_STATS_TTL", "", dur(time.Second, func(c *Config) *time.Duration { return &c.Cache.StatsTTL })},
	{"cache.max_size", "PALLET_CACHE_MAX_SIZE", "", integer(func(c *Config) *int { return &c.Cache.MaxSize })},

	{"tracing.endpoint", "PALLET_OTLP_ENDPOINT", "otlp-endpoint", str(func(c *Config) *string { return &c.Tracing.Endpoint })},
	{"tracing.insecure", "PALLET_OTLP_INSECURE", "", boolean(func(c *Config) *bool { return &c.Tracing.Insecure })},
	{"tracing.service_name", "PALLET_TRACE_SERVICE_NAME", "", str(func(c *Config) *string { return &c.Tracing.ServiceName })},
	{"tracing.sample_ratio", "PALLET_TRACE_SAMPLE_RATIO", "", float(func(c *Config) *float64 { return &c.Tracing.SampleRatio })},
}

func str(field func(*Config) *string) func(*Config, any) error {
	return func(c *Config, raw any) error {
		*field(c) = strings.TrimSpace(fmt.Sprint(raw))
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, any) error {
	return func(c *Config, raw any) error {
		n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(raw)))
		if err != nil {
			return fmt.Errorf("not an integer: %v", raw)
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, any) error {
	return func(c *Config, raw any) error {
		b, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(raw)))
		if err != nil {
			return fmt.Errorf("not a boolean: %v", raw)
		}
		*field(c) = b
		return nil
	}
}

func float(field func(*Config) *float64) func(*Config, any) error {
	return func(c *Config, raw any) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(raw)), 64)
		if err != nil {
			return fmt.Errorf("not a number: %v", raw)
		}
		*field(c) = f
		return nil
	}
}

// dur accepts a Go duration ("90s") or a bare integer counted in unit.
func dur(unit time.Duration, field func(*Config) *time.Duration) func(*Config, any) error {
	return func(c *Config, raw any) error {
		d, err := parseDuration(fmt.Sprint(raw), unit)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// list accepts a YAML sequence or a comma-separated string.
func list(field func(*Config) *[]string) func(*Config, any) error {
	return func(c *Config, raw any) error {
		var items []string
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
		case []string:
			items = v
		default:
			items = strings.Split(fmt.Sprint(v), ",")
		}
		out := make([]string, 0, len(items))
		for _, s := range items {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*field(c) = out
		return nil
	}
}

func parseDuration(s string, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	return d, nil
}
