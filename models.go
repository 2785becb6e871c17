package main

import (
	"lg/nutrition-advice-api/internal/nutrition"
)

/* ─── Profile validation ─────────────────────────────────────────────── */

// Accepted values for enumerated profile fields. Anything else would make the
// calculator silently fall back to defaults, so PATCH rejects it.
var (
	validSexes = map[string]bool{"male": true, "female": true}
	validGoals = map[string]bool{
		nutrition.GoalLoseFat:     true,
		nutrition.GoalMaintenance: true,
		nutrition.GoalGainMuscle:  true,
	}
	validActivityLevels = map[string]bool{
		"sedentary": true, "light": true, "moderate": true, "active": true, "very_active": true,
	}
	validSpeeds = map[string]bool{"slow": true, "moderate": true, "fast": true}
)

/* ─── Response types ─────────────────────────────────────────────────── */

// profileResponse is the profile plus what the client needs to drive
// onboarding. Targets is populated once body metrics and goal are present.
type profileResponse struct {
	nutrition.Profile
	MissingStep string             `json:"missing_step,omitempty"`
	Hash        string             `json:"profile_hash"`
	Targets     *nutrition.Summary `json:"targets,omitempty"`
}

// acceptedResponse is the 202 body for kickoff and pending polls.
type acceptedResponse struct {
	Started      bool  `json:"started,omitempty"`
	Pending      bool  `json:"pending,omitempty"`
	RetryAfterMs int64 `json:"retry_after_ms"`
}
