package nutrition

import (
	"encoding/json"
	"testing"
	"time"
)

// TestHash_FieldOrderIndependent decodes the same profile from two JSON
// documents with different key orders and expects identical fingerprints.
func TestHash_FieldOrderIndependent(t *testing.T) {
	a := `{"sex":"male","weight_kg":80,"height_cm":180,"goal":"lose_fat","country":"ES","date_of_birth":"1996-01-01","food_preferences":["fish","rice"]}`
	b := `{"food_preferences":["rice","fish"],"date_of_birth":"1996-01-01","country":"ES","goal":"lose_fat","height_cm":180,"weight_kg":80,"sex":"male"}`

	var pa, pb Profile
	if err := json.Unmarshal([]byte(a), &pa); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(b), &pb); err != nil {
		t.Fatal(err)
	}
	if Hash(pa) != Hash(pb) {
		t.Error("hash differs for reordered fields")
	}
}

func TestHash_InfluencingFieldsChangeHash(t *testing.T) {
	base := makeProfile("male", 1996, 180, 80, "sedentary", GoalLoseFat, "moderate")
	baseHash := Hash(base)

	cases := []struct {
		name  string
		mutFn func(p *Profile)
	}{
		{"weight", func(p *Profile) { p.WeightKG = ptr(81.0) }},
		{"height", func(p *Profile) { p.HeightCM = ptr(181.0) }},
		{"sex", func(p *Profile) { p.Sex = ptr("female") }},
		{"goal", func(p *Profile) { p.Goal = ptr(GoalGainMuscle) }},
		{"speed", func(p *Profile) { p.ChangeSpeed = ptr("fast") }},
		{"activity", func(p *Profile) { p.ActivityLevel = ptr("active") }},
		{"country", func(p *Profile) { p.Country = ptr("MX") }},
		{"target weight", func(p *Profile) { p.TargetWeightKG = ptr(70.0) }},
		{"preferences", func(p *Profile) { p.FoodPreferences = []string{"vegan"} }},
		{"protein", func(p *Profile) { p.DailyProteinG = ptr(150.0) }},
		{"meal types", func(p *Profile) { p.MealTypes = []string{"breakfast", "dinner"} }},
		{"birth date", func(p *Profile) { p.DateOfBirth = &DateOnly{time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutFn(&p)
			if Hash(p) == baseHash {
				t.Errorf("changing %s did not change the hash", tc.name)
			}
		})
	}
}

func TestHash_NonInfluencingFieldsIgnored(t *testing.T) {
	base := makeProfile("male", 1996, 180, 80, "sedentary", GoalLoseFat, "moderate")
	p := base
	p.DisplayName = ptr("Someone Else")
	p.UserID = 99
	now := time.Now()
	p.UpdatedAt = &now
	if Hash(p) != Hash(base) {
		t.Error("non-influencing fields changed the hash")
	}
}

// TestHash_MealOrderMatters verifies meal configuration is an ordered list.
func TestHash_MealOrderMatters(t *testing.T) {
	a := makeProfile("male", 1996, 180, 80, "sedentary", GoalLoseFat, "moderate")
	b := a
	a.MealTypes = []string{"breakfast", "snack", "lunch"}
	b.MealTypes = []string{"breakfast", "lunch", "snack"}
	if Hash(a) == Hash(b) {
		t.Error("meal order should affect the hash")
	}
}

func TestHash_NormalizesCase(t *testing.T) {
	a := makeProfile("male", 1996, 180, 80, "sedentary", GoalLoseFat, "moderate")
	b := makeProfile(" Male ", 1996, 180, 80, "SEDENTARY", "LOSE_FAT", "Moderate")
	if Hash(a) != Hash(b) {
		t.Error("case/whitespace variants should hash identically")
	}
}

func TestHash_ListItemsWithCommas(t *testing.T) {
	a := makeProfile("male", 1996, 180, 80, "sedentary", GoalLoseFat, "moderate")
	b := a
	a.FoodPreferences = []string{"a,b"}
	b.FoodPreferences = []string{"a", "b"}
	if Hash(a) == Hash(b) {
		t.Error(`["a,b"] and ["a","b"] preferences hash identically`)
	}

	a.FoodPreferences, b.FoodPreferences = nil, nil
	a.MealTypes = []string{"breakfast,lunch"}
	b.MealTypes = []string{"breakfast", "lunch"}
	if Hash(a) == Hash(b) {
		t.Error("meal types with commas collide")
	}

	a.MealTypes, b.MealTypes = nil, []string{}
	if Hash(a) != Hash(b) {
		t.Error("nil and empty lists should hash identically")
	}
}
