package auth

import (
	"os"
	"strconv"
	"time"
)

// AuthConfig controls token issuance and login throttling.
type AuthConfig struct {
	Secret         string        // HMAC key for HS256 tokens. Required.
	Issuer         string        // Default "pallet-registry"
	TokenTTL       time.Duration // Default 60m
	LoginPerMinute int           // Login attempts allowed per login name per minute. Default 5
	LoginBurst     int           // Default 5
}

// DefaultAuthConfig returns the default configuration.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Issuer:         "pallet-registry",
		TokenTTL:       60 * time.Minute,
		LoginPerMinute: 5,
		LoginBurst:     5,
	}
}

// AuthConfigFromEnv loads config from environment variables.
// PALLET_AUTH_SECRET, PALLET_AUTH_ISSUER, PALLET_AUTH_TOKEN_TTL_MINUTES,
// PALLET_AUTH_LOGIN_PER_MINUTE, PALLET_AUTH_LOGIN_BURST
func AuthConfigFromEnv() *AuthConfig {
	cfg := DefaultAuthConfig()

	cfg.Secret = os.Getenv("PALLET_AUTH_SECRET")
	if v := os.Getenv("PALLET_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("PALLET_AUTH_TOKEN_TTL_MINUTES"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			cfg.TokenTTL = time.Duration(m) * time.Minute
		}
	}
	if v := os.Getenv("PALLET_AUTH_LOGIN_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LoginPerMinute = n
		}
	}
	if v := os.Getenv("PALLET_AUTH_LOGIN_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LoginBurst = n
		}
	}

	return cfg
}
