package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/platform/apierr"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store"
)

// userStore resolves logins and bearer tokens.
type userStore interface {
	UserByUsername(ctx context.Context, username string) (store.User, error)
	UserIDByToken(ctx context.Context, token string) (int, error)
}

// profileStore reads and partially updates profiles.
type profileStore interface {
	GetProfile(ctx context.Context, userID int) (nutrition.Profile, error)
	UpdateProfile(ctx context.Context, userID int, patch store.ProfilePatch) (nutrition.Profile, error)
}

// Handler holds shared dependencies (stores, advice service) for all route handlers.
type Handler struct {
	users    userStore
	profiles profileStore
	advice   *advice.Service
	log      *logger.Logger
}

/* ─── Error responses ─────────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// writeAPIError renders an apierr.Error as {"error", "code", ...details}.
func writeAPIError(c *gin.Context, e *apierr.Error) {
	body := gin.H{"error": e.Error(), "code": e.Code}
	for k, v := range e.Details {
		body[k] = v
	}
	c.JSON(e.Status, body)
}

/* ─── Routes ──────────────────────────────────────────────────────────── */

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.POST("/api/login", h.login)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	api.GET("/advice", h.getAdvice)
	api.POST("/advice", h.getAdvice)
	api.DELETE("/advice/cache", h.deleteAdviceCache)
}
