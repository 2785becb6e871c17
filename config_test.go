package main

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("ADVICE_MODEL_ALTERNATES", "")

	cfg := loadConfig()
	if cfg.Addr != "localhost:3000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.CacheBackend != cacheMemory {
		t.Errorf("CacheBackend = %q, want memory without DB_URL", cfg.CacheBackend)
	}
	if cfg.Advice.MinFallbackWait != 4*time.Minute || cfg.Advice.FlashModel != "gemini-2.5-flash" {
		t.Errorf("advice defaults = %+v", cfg.Advice)
	}
	if len(cfg.Advice.AlternateModels) != 1 || cfg.Advice.AlternateModels[0] != "gemini-2.0-flash" {
		t.Errorf("alternates = %v", cfg.Advice.AlternateModels)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/test")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("ADVICE_TIMEOUT_FLASH_MS", "1500")
	t.Setenv("ADVICE_MIN_FALLBACK_MS", "0")
	t.Setenv("ADVICE_MODEL_ALTERNATES", "a, b,,")
	t.Setenv("ADVICE_RETRY_ATTEMPTS", "not-a-number")
	t.Setenv("REDIS_CACHE_TTL_HOURS", "12")

	cfg := loadConfig()
	if cfg.CacheBackend != cachePostgres {
		t.Errorf("CacheBackend = %q", cfg.CacheBackend)
	}
	if cfg.Advice.FlashTimeout != 1500*time.Millisecond {
		t.Errorf("FlashTimeout = %v", cfg.Advice.FlashTimeout)
	}
	if cfg.Advice.MinFallbackWait != 0 {
		t.Errorf("MinFallbackWait = %v", cfg.Advice.MinFallbackWait)
	}
	if len(cfg.Advice.AlternateModels) != 2 || cfg.Advice.AlternateModels[1] != "b" {
		t.Errorf("alternates = %v", cfg.Advice.AlternateModels)
	}
	if cfg.Advice.RetryAttempts != 2 {
		t.Errorf("malformed RetryAttempts = %d, want default 2", cfg.Advice.RetryAttempts)
	}
	if cfg.RedisTTL != 12*time.Hour {
		t.Errorf("RedisTTL = %v", cfg.RedisTTL)
	}
}
