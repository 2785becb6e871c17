package advice

import (
	"fmt"
	"strings"
	"time"

	"lg/nutrition-advice-api/internal/mealplan"
	"lg/nutrition-advice-api/internal/nutrition"
)

// Prompts holds the variants a ladder may send.
type Prompts struct {
	System   string
	Full     string
	Reduced  string
	Extended string
}

const systemPrompt = `You are a registered dietitian writing a personal nutrition plan.
Write a short, encouraging explanation first, then the data blocks exactly as requested.
Every data block starts with its label and a colon on its own line, followed by valid JSON.
Never invent medical claims. Use metric units.`

const outputFormat = `OUTPUT FORMAT:
SUMMARY:
{"tmb": number, "tdee": number, "kcal_target": number, "deficit_or_surplus": number, "weekly_pace_kg": number,
 "protein_g": number, "fat_g": number, "carb_g": number}
MEALS:
[{"day": "Monday", "meals": [{"type": "Breakfast", "name": "...", "ingredients": ["name (quantity unit)"]}]}, ... 7 days]
HYDRATION:
{"liters": number}
BEVERAGES:
{"items": ["..."]}`

// BuildPrompts renders the prompt set for a profile. s is the locally
// computed summary, given to the model as the target it should respect.
func BuildPrompts(p nutrition.Profile, s nutrition.Summary, saved []nutrition.SavedFood, now time.Time) Prompts {
	var profile strings.Builder
	profile.WriteString("USER PROFILE:\n")
	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&profile, "- %s: %s\n", label, value)
		}
	}
	line("Sex", deref(p.Sex))
	if age := p.Age(now); age >= 0 {
		line("Age", fmt.Sprintf("%d years", age))
	}
	if p.HeightCM != nil {
		line("Height", fmt.Sprintf("%.0f cm", *p.HeightCM))
	}
	if p.WeightKG != nil {
		line("Weight", fmt.Sprintf("%.1f kg", *p.WeightKG))
	}
	if p.TargetWeightKG != nil {
		line("Target weight", fmt.Sprintf("%.1f kg", *p.TargetWeightKG))
	}
	line("Goal", p.GoalKind())
	line("Activity level", deref(p.ActivityLevel))
	line("Change speed", deref(p.ChangeSpeed))
	line("Country", deref(p.Country))
	line("Food preferences", strings.Join(p.FoodPreferences, ", "))

	var targets strings.Builder
	targets.WriteString("MACRO TARGETS:\n")
	fmt.Fprintf(&targets, "- Calories: %.0f kcal/day (maintenance %.0f)\n", s.KcalTarget, s.TDEE)
	fmt.Fprintf(&targets, "- Protein: %.0f g\n- Fat: %.0f g\n- Carbohydrates: %.0f g\n", s.ProteinG, s.FatG, s.CarbG)

	types := mealplan.CanonicalTypes(p.MealTypes)
	var structure strings.Builder
	structure.WriteString("MEAL STRUCTURE:\n")
	if len(types) > 0 {
		fmt.Fprintf(&structure, "- Exactly these meals every day, in this order: %s\n", strings.Join(types, ", "))
	} else {
		structure.WriteString("- Breakfast, Lunch and Dinner, plus snacks if they help reach the targets\n")
	}
	if len(saved) > 0 {
		names := make([]string, 0, len(saved))
		for _, f := range saved {
			names = append(names, f.Name)
		}
		fmt.Fprintf(&structure, "- Prefer these saved foods where they fit: %s\n", strings.Join(names, ", "))
	}
	if p.Country != nil && *p.Country != "" {
		fmt.Fprintf(&structure, "- Use foods commonly available in %s\n", *p.Country)
	}

	full := strings.Join([]string{
		"Create a 7-day nutrition plan for this person.",
		profile.String(), targets.String(), structure.String(), outputFormat,
	}, "\n")

	reduced := strings.Join([]string{
		"Create a concise nutrition plan. Keep the explanation under 120 words and vary meals across the week.",
		profile.String(), targets.String(), structure.String(),
		`OUTPUT FORMAT:
SUMMARY:
{"kcal_target": number, "protein_g": number, "fat_g": number, "carb_g": number}
MEALS:
[{"type": "Breakfast", "name": "..."}, ...]`,
	}, "\n")

	extended := full + "\n\nIMPORTANT: a previous answer was cut short. Include all 7 days in MEALS and every block above. Keep the explanation brief."

	return Prompts{System: systemPrompt, Full: full, Reduced: reduced, Extended: extended}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
