package session

import (
	"os"
	"strings"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls token TTLs, clock skew tolerance, and the HS256 signing secrets.
// Access and refresh tokens are signed with distinct secrets on purpose:
// compromise of one secret cannot forge the other token class.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of every token.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// AccessSecret signs access tokens (HS256).
	AccessSecret string

	// RefreshSecret signs refresh tokens (HS256). Must differ from AccessSecret.
	RefreshSecret string
}

const minSecretBytes = 32

// DefaultConfig returns defaults suitable for development.
// Secrets have no default; they must always be provided.
func DefaultConfig() Config {
	return Config{
		Issuer:          "pulse",
		AccessTokenTTL:  24 * time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PULSE_AUTH_ACCESS_SECRET (>= 32 bytes)
//   - PULSE_AUTH_REFRESH_SECRET (>= 32 bytes, distinct from the access secret)
//
// Optional (durations must be valid Go duration strings):
//   - PULSE_AUTH_ISSUER
//   - PULSE_AUTH_ACCESS_TTL
//   - PULSE_AUTH_REFRESH_TTL
//   - PULSE_AUTH_CLOCK_SKEW
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.AccessSecret = strings.TrimSpace(os.Getenv("PULSE_AUTH_ACCESS_SECRET"))
	cfg.RefreshSecret = strings.TrimSpace(os.Getenv("PULSE_AUTH_REFRESH_SECRET"))

	if v := strings.TrimSpace(os.Getenv("PULSE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_AUTH_ACCESS_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_AUTH_REFRESH_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_AUTH_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the security invariants of the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	if len(c.AccessSecret) < minSecretBytes || len(c.RefreshSecret) < minSecretBytes {
		return ErrConfig
	}
	if c.AccessSecret == c.RefreshSecret {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	// An access token outliving the refresh token defeats rotation.
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return ErrConfig
	}
	if c.ClockSkew < 0 {
		return ErrConfig
	}
	return nil
}
