package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_ADDR", "DB_AUTO_MIGRATE", "SESSION_TTL_HOURS", "AUTH_RATE_LIMIT_PER_MINUTE", "BOOTSTRAP_TOKEN"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.AppEnv != "development" {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTPAddr)
	}
	if !cfg.DBAutoMigrate {
		t.Fatalf("auto migrate should default to true")
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("expected 24h session ttl, got %v", cfg.SessionTTL())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_AUTO_MIGRATE", "off")
	t.Setenv("CSRF_ENFORCED", "yes")
	t.Setenv("AUTH_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("DB_CONN_MAX_LIFETIME_MINUTES", "not-a-number")
	t.Setenv("BOOTSTRAP_TOKEN", "  secret  ")

	cfg := LoadConfig()
	if cfg.AppEnv != "production" || cfg.DBAutoMigrate || !cfg.CSRFEnforced {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AuthRateLimitPerMin != 5 {
		t.Fatalf("expected rate limit 5, got %d", cfg.AuthRateLimitPerMin)
	}
	if cfg.PostgresConfig().ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("invalid int should fall back to default")
	}
	if cfg.BootstrapToken != "secret" {
		t.Fatalf("bootstrap token should be trimmed, got %q", cfg.BootstrapToken)
	}
}

func TestBoolOrDefaultUnknownValue(t *testing.T) {
	t.Setenv("QUIZHUB_FLAG", "maybe")
	if !boolOrDefault("QUIZHUB_FLAG", true) {
		t.Fatalf("unknown value should keep fallback")
	}
}
