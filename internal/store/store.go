// Package store holds the types shared by the storage backends.
package store

import (
	"errors"
	"time"

	"lg/nutrition-advice-api/internal/nutrition"
)

// ErrNotFound is returned by every backend when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// User maps to the users table. AuthToken and Password are hidden from JSON responses.
type User struct {
	ID        int        `json:"id"         db:"id"`
	Username  string     `json:"username"   db:"username"`
	Email     string     `json:"email"      db:"email"`
	AuthToken string     `json:"-"          db:"auth_token"`
	Password  string     `json:"-"          db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// ProfilePatch carries the fields a PATCH request sent. A nil field is left
// unchanged.
type ProfilePatch struct {
	DisplayName     *string             `json:"display_name"`
	Sex             *string             `json:"sex"`
	DateOfBirth     *nutrition.DateOnly `json:"date_of_birth"`
	HeightCM        *float64            `json:"height_cm"`
	WeightKG        *float64            `json:"weight_kg"`
	Goal            *string             `json:"goal"`
	ActivityLevel   *string             `json:"activity_level"`
	ChangeSpeed     *string             `json:"change_speed"`
	Country         *string             `json:"country"`
	TargetWeightKG  *float64            `json:"target_weight_kg"`
	FoodPreferences *[]string           `json:"food_preferences"`
	DailyProteinG   *float64            `json:"daily_protein_g"`
	MealTypes       *[]string           `json:"meal_types"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.Sex == nil && p.DateOfBirth == nil && p.HeightCM == nil &&
		p.WeightKG == nil && p.Goal == nil && p.ActivityLevel == nil && p.ChangeSpeed == nil &&
		p.Country == nil && p.TargetWeightKG == nil && p.FoodPreferences == nil &&
		p.DailyProteinG == nil && p.MealTypes == nil
}

// Apply copies the sent fields onto prof.
func (p ProfilePatch) Apply(prof *nutrition.Profile) {
	if p.DisplayName != nil {
		prof.DisplayName = p.DisplayName
	}
	if p.Sex != nil {
		prof.Sex = p.Sex
	}
	if p.DateOfBirth != nil {
		prof.DateOfBirth = p.DateOfBirth
	}
	if p.HeightCM != nil {
		prof.HeightCM = p.HeightCM
	}
	if p.WeightKG != nil {
		prof.WeightKG = p.WeightKG
	}
	if p.Goal != nil {
		prof.Goal = p.Goal
	}
	if p.ActivityLevel != nil {
		prof.ActivityLevel = p.ActivityLevel
	}
	if p.ChangeSpeed != nil {
		prof.ChangeSpeed = p.ChangeSpeed
	}
	if p.Country != nil {
		prof.Country = p.Country
	}
	if p.TargetWeightKG != nil {
		prof.TargetWeightKG = p.TargetWeightKG
	}
	if p.FoodPreferences != nil {
		prof.FoodPreferences = append([]string(nil), (*p.FoodPreferences)...)
	}
	if p.DailyProteinG != nil {
		prof.DailyProteinG = p.DailyProteinG
	}
	if p.MealTypes != nil {
		prof.MealTypes = append([]string(nil), (*p.MealTypes)...)
	}
}
