package nutrition

import (
	"math"
	"strings"
)

// SavedFood is an entry from the user's saved-foods list.
type SavedFood struct {
	Name     string `json:"name"      db:"name"`
	MealType string `json:"meal_type" db:"meal_type"`
}

// Pairing is a minimal meal suggestion built without the generation service.
type Pairing struct {
	Name  string
	Items []string
}

var defaultPairings = map[string][][]string{
	"breakfast": {
		{"Oatmeal", "Greek yogurt", "Banana"},
		{"Scrambled eggs", "Whole-grain toast", "Orange"},
		{"Cottage cheese", "Berries", "Granola"},
	},
	"lunch": {
		{"Grilled chicken breast", "Brown rice", "Broccoli"},
		{"Turkey", "Quinoa", "Mixed greens"},
		{"Lentils", "Sweet potato", "Spinach"},
	},
	"dinner": {
		{"Salmon", "Sweet potato", "Green beans"},
		{"Lean beef", "Potatoes", "Carrots"},
		{"Tofu", "Whole-wheat pasta", "Zucchini"},
	},
	"snack": {
		{"Apple", "Almonds"},
		{"Greek yogurt", "Walnuts"},
		{"Carrot sticks", "Hummus"},
	},
}

// FoodPairing suggests a meal of the given type. Saved foods tagged with the
// meal type (or untagged) are preferred; seq rotates through candidates so a
// week of placeholders is not seven copies of the same meal.
func FoodPairing(mealType string, saved []SavedFood, seq int) Pairing {
	mt := strings.ToLower(strings.TrimSpace(mealType))
	if seq < 0 {
		seq = -seq
	}

	var candidates []string
	for _, f := range saved {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		tag := strings.ToLower(strings.TrimSpace(f.MealType))
		if tag == "" || tag == mt {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) > 0 {
		n := 3
		if mt == "snack" {
			n = 2
		}
		if n > len(candidates) {
			n = len(candidates)
		}
		items := make([]string, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, candidates[(seq+i)%len(candidates)])
		}
		return Pairing{Name: strings.Join(items, " with "), Items: items}
	}

	options, ok := defaultPairings[mt]
	if !ok {
		options = defaultPairings["lunch"]
	}
	items := options[seq%len(options)]
	return Pairing{Name: strings.Join(items, " with "), Items: append([]string(nil), items...)}
}

// HydrationLiters is weight x WaterMlPerKg, plus half a liter for active
// levels, clamped to [1.5, 4.5] and rounded to 0.1 L.
func (c *Calculator) HydrationLiters(p Profile) float64 {
	w := num(p.WeightKG)
	if w <= 0 {
		return 2
	}
	liters := w * c.Policy.WaterMlPerKg / 1000
	if c.ActivityFactor(str(p.ActivityLevel)) >= 1.6 {
		liters += 0.5
	}
	liters = math.Min(4.5, math.Max(1.5, liters))
	return math.Round(liters*10) / 10
}

// DefaultBeverages lists safe beverage suggestions, honoring declared
// dairy-free preferences.
func DefaultBeverages(p Profile) []string {
	out := []string{"Water", "Unsweetened tea", "Coffee without sugar"}
	dairyFree := false
	for _, pref := range p.FoodPreferences {
		l := strings.ToLower(pref)
		if containsAny(l, "vegan", "lactose", "dairy", "lácteo", "lacteo") {
			dairyFree = true
			break
		}
	}
	if dairyFree {
		return append(out, "Unsweetened soy drink")
	}
	return append(out, "Skim milk")
}
