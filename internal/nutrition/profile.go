// Package nutrition holds the user profile, its fingerprint, and the local
// plan calculator used both as the last-resort fallback and as the sanitizer
// for numbers returned by the text-generation service.
package nutrition

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Goals a profile can declare.
const (
	GoalLoseFat     = "lose_fat"
	GoalGainMuscle  = "gain_muscle"
	GoalMaintenance = "maintenance"
)

// ErrIncompleteProfile is returned when body metrics needed for BMR are absent.
var ErrIncompleteProfile = errors.New("profile is missing required body metrics")

// Onboarding steps reported when required profile data is absent.
const (
	StepBodyMetrics = "body_metrics"
	StepGoal        = "goal"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format("2006-01-02") + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate lets pgx scan PostgreSQL date columns into DateOnly.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// Profile is the read-only input to plan generation. Nullable fields are
// pointers so partially onboarded users still load.
type Profile struct {
	UserID      int     `json:"user_id"      db:"user_id"`
	DisplayName *string `json:"display_name" db:"display_name"`

	Sex            *string   `json:"sex"              db:"sex"`
	DateOfBirth    *DateOnly `json:"date_of_birth"    db:"date_of_birth"`
	HeightCM       *float64  `json:"height_cm"        db:"height_cm"`
	WeightKG       *float64  `json:"weight_kg"        db:"weight_kg"`
	Goal           *string   `json:"goal"             db:"goal"`
	ActivityLevel  *string   `json:"activity_level"   db:"activity_level"`
	ChangeSpeed    *string   `json:"change_speed"     db:"change_speed"`
	Country        *string   `json:"country"          db:"country"`
	TargetWeightKG *float64  `json:"target_weight_kg" db:"target_weight_kg"`

	FoodPreferences []string `json:"food_preferences" db:"food_preferences"`
	DailyProteinG   *float64 `json:"daily_protein_g"  db:"daily_protein_g"`
	// MealTypes is the ordered per-day meal configuration, e.g.
	// ["breakfast", "snack", "lunch", "dinner"]. Empty means unconstrained.
	MealTypes []string `json:"meal_types" db:"meal_types"`

	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// Age in whole years at now, or -1 when no birth date is set.
func (p Profile) Age(now time.Time) int {
	if p.DateOfBirth == nil || p.DateOfBirth.IsZero() {
		return -1
	}
	dob := p.DateOfBirth.Time
	age := now.Year() - dob.Year()
	if now.Before(dob.AddDate(age, 0, 0)) {
		age--
	}
	return age
}

// MissingStep names the first onboarding step whose data is absent, or "".
func (p Profile) MissingStep(now time.Time) string {
	age := p.Age(now)
	if p.Sex == nil || p.HeightCM == nil || p.WeightKG == nil ||
		*p.HeightCM <= 0 || *p.WeightKG <= 0 || age < 0 || age > 130 {
		return StepBodyMetrics
	}
	if p.Goal == nil || strings.TrimSpace(*p.Goal) == "" {
		return StepGoal
	}
	return ""
}

// GoalKind normalizes the declared goal to one of the Goal constants.
// Anything unrecognized is treated as maintenance.
func (p Profile) GoalKind() string {
	g := strings.ToLower(str(p.Goal))
	switch {
	case strings.Contains(g, "lose"), strings.Contains(g, "loss"), strings.Contains(g, "fat"),
		strings.Contains(g, "perder"), strings.Contains(g, "cut"):
		return GoalLoseFat
	case strings.Contains(g, "gain"), strings.Contains(g, "muscle"), strings.Contains(g, "ganar"),
		strings.Contains(g, "bulk"):
		return GoalGainMuscle
	default:
		return GoalMaintenance
	}
}

// IsMale reports whether the profile's sex resolves to male.
func (p Profile) IsMale() bool {
	s := strings.ToLower(str(p.Sex))
	return s == "male" || s == "m" || s == "man" || s == "hombre" || s == "masculino"
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func num(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
