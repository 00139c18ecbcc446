package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	t.Setenv("RATE_LIMIT_WHITELIST", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %q", cfg.Env)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment")
	}
	if cfg.ProviderTimeout != 120*time.Second {
		t.Errorf("expected default provider timeout 120s, got %v", cfg.ProviderTimeout)
	}
	if len(cfg.RateLimitWhitelist) != 0 {
		t.Errorf("expected empty whitelist, got %v", cfg.RateLimitWhitelist)
	}
}

func TestLoadProviderTimeout(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "45s")
	cfg := Load()
	if cfg.ProviderTimeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.ProviderTimeout)
	}
}

func TestLoadProviderTimeoutInvalid(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	cfg := Load()
	if cfg.ProviderTimeout != 120*time.Second {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.ProviderTimeout)
	}
}

func TestLoadWhitelist(t *testing.T) {
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16 ,,")
	cfg := Load()
	if len(cfg.RateLimitWhitelist) != 2 {
		t.Fatalf("expected 2 entries, got %v", cfg.RateLimitWhitelist)
	}
	if cfg.RateLimitWhitelist[0] != "10.0.0.1" || cfg.RateLimitWhitelist[1] != "192.168.0.0/16" {
		t.Errorf("unexpected entries: %v", cfg.RateLimitWhitelist)
	}
}

func TestLoadProductionRequiresURLs(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing DATABASE_URL in production")
		}
	}()
	Load()
}
