package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lg/nutrition-advice-api/internal/mealplan"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/store"
)

// getProfile returns the authenticated user's profile.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.profiles.GetProfile(c, userID)
	if errors.Is(err, store.ErrNotFound) {
		apiError(c, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		h.log.Error("get profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, h.profileView(p))
}

// patchProfile updates only the provided profile fields.
// PATCH /api/profile. Pointer fields in the request body distinguish "not
// provided" from zero. When the edit changes anything the plan depends on,
// the cached advice is dropped.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body store.ProfilePatch
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Empty() {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if msg := validateProfilePatch(body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	before, err := h.profiles.GetProfile(c, userID)
	if err != nil {
		apiError(c, http.StatusNotFound, "profile not found")
		return
	}
	after, err := h.profiles.UpdateProfile(c, userID, body)
	if err != nil {
		h.log.Error("update profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to update profile")
		return
	}

	if err := h.advice.ProfileUpdated(c, before, after); err != nil {
		h.log.Warn("advice cache invalidation failed", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, h.profileView(after))
}

func (h *Handler) profileView(p nutrition.Profile) profileResponse {
	resp := profileResponse{Profile: p, Hash: nutrition.Hash(p)}
	resp.MissingStep = p.MissingStep(time.Now())
	if resp.MissingStep == "" {
		if s, err := nutrition.NewCalculator().Compute(p); err == nil {
			resp.Targets = &s
		}
	}
	return resp
}

// validateProfilePatch returns a client-facing message, or "" when the patch
// is acceptable.
func validateProfilePatch(p store.ProfilePatch) string {
	switch {
	case p.Sex != nil && !validSexes[*p.Sex]:
		return "sex must be one of: male, female"
	case p.Goal != nil && !validGoals[*p.Goal]:
		return "goal must be one of: lose_fat, maintenance, gain_muscle"
	case p.ActivityLevel != nil && !validActivityLevels[*p.ActivityLevel]:
		return "activity_level must be one of: sedentary, light, moderate, active, very_active"
	case p.ChangeSpeed != nil && !validSpeeds[*p.ChangeSpeed]:
		return "change_speed must be one of: slow, moderate, fast"
	case p.HeightCM != nil && (*p.HeightCM < 50 || *p.HeightCM > 260):
		return "height_cm must be between 50 and 260"
	case p.WeightKG != nil && (*p.WeightKG < 20 || *p.WeightKG > 400):
		return "weight_kg must be between 20 and 400"
	case p.TargetWeightKG != nil && (*p.TargetWeightKG < 20 || *p.TargetWeightKG > 400):
		return "target_weight_kg must be between 20 and 400"
	case p.DailyProteinG != nil && (*p.DailyProteinG < 0 || *p.DailyProteinG > 500):
		return "daily_protein_g must be between 0 and 500"
	case p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()):
		return "date_of_birth must be in the past"
	}
	if p.MealTypes != nil {
		for _, label := range *p.MealTypes {
			if _, ok := mealplan.ClassifyMealType(label); !ok {
				return "meal_types entries must be breakfast, lunch, dinner or snack"
			}
		}
	}
	return ""
}
