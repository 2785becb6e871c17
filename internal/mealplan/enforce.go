package mealplan

import (
	"math"
	"strings"

	"lg/nutrition-advice-api/internal/nutrition"
)

// DefaultMealTypes is used for purely local plans when the user has not
// configured their meals.
var DefaultMealTypes = []string{Breakfast, Lunch, Dinner}

// CanonicalTypes maps configured labels ("snack", "Cena") to meal types,
// dropping anything unrecognized.
func CanonicalTypes(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if t, ok := ClassifyMealType(l); ok {
			out = append(out, t)
		}
	}
	return out
}

// Enforce makes every day hold exactly the ordered multiset of meal types in
// want. Meals are reused from the same day first, then from any day of the
// week with the same type; a placeholder from the food-pairing fallback fills
// a type the plan never mentions. Surplus meals are dropped. With an empty
// want the week is returned unchanged.
func Enforce(w Week, want []string, saved []nutrition.SavedFood) Week {
	if len(want) == 0 {
		return w
	}
	global := map[string][]Meal{}
	for _, d := range w {
		for _, m := range d.Meals {
			global[m.Type] = append(global[m.Type], m)
		}
	}

	out := EmptyWeek()
	for i, d := range w {
		pool := map[string][]Meal{}
		for _, m := range d.Meals {
			pool[m.Type] = append(pool[m.Type], m)
		}
		used := map[string]int{}
		meals := make([]Meal, 0, len(want))
		for _, t := range want {
			var m Meal
			switch {
			case len(pool[t]) > 0:
				m, pool[t] = pool[t][0], pool[t][1:]
			case len(global[t]) > 0:
				g := global[t]
				m = g[(i+used[t])%len(g)]
			default:
				m = placeholder(t, saved, i+used[t])
			}
			used[t]++
			meals = append(meals, cloneMeals([]Meal{m})[0])
		}
		out[i].Meals = meals
		out[i].Active = true
	}
	return out
}

func placeholder(mealType string, saved []nutrition.SavedFood, seq int) Meal {
	p := nutrition.FoodPairing(strings.ToLower(mealType), saved, seq)
	return Meal{
		Type:          mealType,
		Name:          p.Name,
		FreeTextItems: p.Items,
		Placeholder:   true,
	}
}

// MinProteinPerMeal is the floor for a per-meal protein target.
const MinProteinPerMeal = 6.0

// DistributeProtein splits dailyG evenly across each day's meals, never less
// than MinProteinPerMeal per meal. A non-positive target clears per-meal
// targets.
func DistributeProtein(w Week, dailyG float64) {
	for i := range w {
		n := len(w[i].Meals)
		if n == 0 {
			continue
		}
		per := 0.0
		if dailyG > 0 {
			per = math.Max(MinProteinPerMeal, math.Round(dailyG/float64(n)*10)/10)
		}
		for j := range w[i].Meals {
			w[i].Meals[j].ProteinTargetG = per
		}
	}
}

// LocalWeek builds a plan entirely from food pairings.
func LocalWeek(want []string, saved []nutrition.SavedFood) Week {
	if len(want) == 0 {
		want = DefaultMealTypes
	}
	return Enforce(EmptyWeek(), want, saved)
}
