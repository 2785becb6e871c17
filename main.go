package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/platform/envutil"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store/memory"
	"lg/nutrition-advice-api/internal/store/postgres"
	"lg/nutrition-advice-api/internal/store/rediscache"
	"lg/nutrition-advice-api/internal/store/sqlitecache"
)

func main() {
	// A missing .env is fine in deployments that set the environment directly.
	_ = godotenv.Load()
	cfg := loadConfig()

	log, err := logger.New(cfg.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.close()

	var router *gin.Engine
	if cfg.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}
	router.SetTrustedProxies(nil)
	a.handler.registerRoutes(router)

	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("listening", "addr", cfg.Addr, "cache_backend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

/* ─── Wiring ──────────────────────────────────────────────────────────── */

// app owns everything main has to close.
type app struct {
	handler *Handler
	service *advice.Service
	closers []func()
}

func (a *app) close() {
	a.service.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// primaryStore is a backend holding users, profiles, saved foods and,
// unless another cache backend is chosen, the advice cache.
type primaryStore interface {
	userStore
	profileStore
	advice.ProfileStore
	advice.FoodStore
	advice.CacheStore
}

// newApp connects the stores selected by cfg and builds the handler.
func newApp(ctx context.Context, cfg appConfig, log *logger.Logger) (*app, error) {
	a := &app{}

	var primary primaryStore
	if cfg.DBURL != "" {
		pg, err := postgres.Open(ctx, cfg.DBURL, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		primary = pg
		log.Info("DB pool ready")
	} else {
		mem := memory.New()
		if err := seedDevUser(ctx, mem, log); err != nil {
			return nil, err
		}
		primary = mem
		log.Warn("DB_URL not set, using in-memory stores")
	}

	var cache advice.CacheStore
	switch cfg.CacheBackend {
	case cachePostgres, cacheMemory:
		cache = primary
	case cacheRedis:
		rc, err := rediscache.New(cfg.RedisAddr, cfg.RedisTTL, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { rc.Close() })
		cache = rc
	case cacheSQLite:
		sc, err := sqlitecache.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { sc.Close() })
		cache = sc
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}

	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, every request will use the local plan")
	}
	a.service = advice.NewService(advice.Deps{
		Profiles:  primary,
		Foods:     primary,
		Cache:     cache,
		Generator: llm.New(cfg.GeminiAPIKey, cfg.GeminiBaseURL, log),
		Config:    cfg.Advice,
		Log:       log,
		Calc:      nutrition.NewCalculator(),
	})
	a.handler = &Handler{users: primary, profiles: primary, advice: a.service, log: log}
	return a, nil
}

// seedDevUser creates a login for in-memory runs when DEV_USER is set. The
// token is printed so curl sessions can skip /api/login.
func seedDevUser(ctx context.Context, db *memory.DB, log *logger.Logger) error {
	username := envutil.String("DEV_USER", "")
	if username == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(envutil.String("DEV_PASSWORD", "password")), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	token := uuid.New().String()
	u, err := db.CreateUser(ctx, username, "", string(hash), token)
	if err != nil {
		return err
	}
	log.Info("dev user created", "user_id", u.ID, "username", username)
	fmt.Printf("Dev auth token: %s\n", token)
	return nil
}
