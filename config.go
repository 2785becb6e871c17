package main

import (
	"time"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/platform/envutil"
)

// Cache backends selectable with CACHE_BACKEND.
const (
	cachePostgres = "postgres"
	cacheRedis    = "redis"
	cacheSQLite   = "sqlite"
	cacheMemory   = "memory"
)

type appConfig struct {
	Addr string
	Mode string
	// Empty DBURL runs everything on in-memory stores.
	DBURL string

	GeminiAPIKey  string
	GeminiBaseURL string

	CacheBackend string
	RedisAddr    string
	RedisTTL     time.Duration
	SQLitePath   string

	Advice advice.Config
}

// loadConfig reads the environment. Unset or malformed values fall back to
// the defaults.
func loadConfig() appConfig {
	cfg := appConfig{
		Addr:          envutil.String("ADDR", "localhost:3000"),
		Mode:          envutil.String("APP_MODE", "dev"),
		DBURL:         envutil.String("DB_URL", ""),
		GeminiAPIKey:  envutil.String("GEMINI_API_KEY", ""),
		GeminiBaseURL: envutil.String("GEMINI_BASE_URL", llm.DefaultBaseURL),
		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisTTL:      time.Duration(envutil.Int("REDIS_CACHE_TTL_HOURS", 0)) * time.Hour,
		SQLitePath:    envutil.String("SQLITE_PATH", "advice_cache.db"),
		Advice:        advice.ConfigFromEnv(),
	}

	backend := cachePostgres
	if cfg.DBURL == "" {
		backend = cacheMemory
	}
	cfg.CacheBackend = envutil.String("CACHE_BACKEND", backend)
	return cfg
}
