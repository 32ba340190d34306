package session

import (
	"strings"
	"testing"
)

func setSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PULSE_AUTH_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("PULSE_AUTH_REFRESH_SECRET", strings.Repeat("r", 32))
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	t.Setenv("PULSE_AUTH_ACCESS_SECRET", "")
	t.Setenv("PULSE_AUTH_REFRESH_SECRET", "")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortSecret(t *testing.T) {
	t.Setenv("PULSE_AUTH_ACCESS_SECRET", "short")
	t.Setenv("PULSE_AUTH_REFRESH_SECRET", strings.Repeat("r", 32))
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_SharedSecretRejected(t *testing.T) {
	same := strings.Repeat("s", 32)
	t.Setenv("PULSE_AUTH_ACCESS_SECRET", same)
	t.Setenv("PULSE_AUTH_REFRESH_SECRET", same)
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig when both classes share a secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	setSecretEnv(t)
	t.Setenv("PULSE_AUTH_ACCESS_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_AccessOutlivingRefresh(t *testing.T) {
	setSecretEnv(t)
	t.Setenv("PULSE_AUTH_ACCESS_TTL", "48h")
	t.Setenv("PULSE_AUTH_REFRESH_TTL", "24h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig when access ttl exceeds refresh ttl, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	setSecretEnv(t)
	t.Setenv("PULSE_AUTH_ISSUER", "pulse-test")
	t.Setenv("PULSE_AUTH_ACCESS_TTL", "12h")
	t.Setenv("PULSE_AUTH_REFRESH_TTL", "96h")
	t.Setenv("PULSE_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "pulse-test" {
		t.Fatalf("issuer: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL.Hours() != 12 || cfg.RefreshTokenTTL.Hours() != 96 {
		t.Fatalf("ttls: %v / %v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
}
