// Package mealplan reshapes whatever meal structure a model produced into a
// canonical seven-day plan.
package mealplan

import (
	"fmt"
	"sort"
	"strings"
)

// Meal is one slot of a day.
type Meal struct {
	Type           string       `json:"type"`
	Name           string       `json:"name"`
	Ingredients    []Ingredient `json:"ingredients,omitempty"`
	FreeTextItems  []string     `json:"free_text_items,omitempty"`
	ProteinTargetG float64      `json:"protein_target_g,omitempty"`
	Placeholder    bool         `json:"placeholder,omitempty"`
}

// Day is one entry of the weekly plan.
type Day struct {
	Day    string `json:"day"`
	Active bool   `json:"active"`
	Meals  []Meal `json:"meals"`
}

// Week is always seven days, Monday first.
type Week []Day

// EmptyWeek returns seven inactive days.
func EmptyWeek() Week {
	w := make(Week, 7)
	for i := range w {
		w[i] = Day{Day: Days[i], Meals: []Meal{}}
	}
	return w
}

// Normalize converts a recovered meals block into a Week. Accepted shapes:
// a canonical weekly array, an object keyed by day name, a flat list of
// meals, an object keyed by meal type (one day repeated), or any of these
// wrapped as {"items": ...} / {"weekly": ...} / {"days": ...}.
func Normalize(raw any) Week {
	w := EmptyWeek()
	switch v := raw.(type) {
	case []any:
		if isWeeklyArray(v) {
			fillFromWeeklyArray(w, v)
		} else {
			fillFromFlat(w, v)
		}
	case map[string]any:
		for _, key := range []string{"weekly", "weekly_plan", "week", "days", "plan"} {
			if inner, ok := v[key]; ok {
				return Normalize(inner)
			}
		}
		if dayKeyed(v) {
			fillFromDayKeyed(w, v)
		} else if items, ok := v["items"].([]any); ok {
			fillFromFlat(w, items)
		} else if meals, ok := v["meals"]; ok {
			return Normalize(meals)
		} else {
			day := mealsFromDay(v)
			for i := range w {
				w[i].Meals = cloneMeals(day)
			}
		}
	}
	for i := range w {
		w[i].Active = len(w[i].Meals) > 0
	}
	return w
}

// Template returns the meals of the first active day.
func (w Week) Template() []Meal {
	for _, d := range w {
		if len(d.Meals) > 0 {
			return d.Meals
		}
	}
	return nil
}

// Variants lists the distinct meal names per type across the week.
func (w Week) Variants() map[string][]string {
	out := map[string][]string{}
	seen := map[string]bool{}
	for _, d := range w {
		for _, m := range d.Meals {
			key := m.Type + "|" + strings.ToLower(m.Name)
			if m.Name == "" || seen[key] {
				continue
			}
			seen[key] = true
			out[m.Type] = append(out[m.Type], m.Name)
		}
	}
	return out
}

// LooksLikeMeals reports whether a block found without its label has a
// shape Normalize can read as meals: an envelope or day-keyed object, an
// object keyed by meal type, a weekly array, or a list of meal objects.
// Lists of bare strings are rejected; beverage lists look the same.
func LooksLikeMeals(raw any) bool {
	switch v := raw.(type) {
	case []any:
		return isWeeklyArray(v) || isMealList(v)
	case map[string]any:
		for _, key := range []string{"weekly", "weekly_plan", "week", "days", "plan", "meals"} {
			if inner, ok := v[key]; ok {
				return LooksLikeMeals(inner)
			}
		}
		if dayKeyed(v) {
			return true
		}
		if items, ok := v["items"].([]any); ok {
			return isMealList(items)
		}
		for k := range v {
			if _, ok := ClassifyMealType(k); ok {
				return true
			}
		}
	}
	return false
}

// isMealList is true when every element is an object naming its slot or
// carrying meal content.
func isMealList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return false
		}
		if firstString(obj, "type", "meal", "slot", "tipo", "meal_type", "time") == "" &&
			obj["ingredients"] == nil && obj["ingredientes"] == nil &&
			firstString(obj, "description", "descripcion") == "" {
			return false
		}
	}
	return true
}

/* ─── Shape handlers ─────────────────────────────────────────────────── */

func isWeeklyArray(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := obj["meals"]; !ok {
			return false
		}
	}
	return true
}

func fillFromWeeklyArray(w Week, items []any) {
	filled := make([]bool, 7)
	for pos, it := range items {
		obj := it.(map[string]any)
		idx := pos % 7
		if label, ok := obj["day"].(string); ok {
			if i, ok := DayIndex(label); ok {
				idx = i
			}
		}
		if filled[idx] {
			continue
		}
		w[idx].Meals = mealsFromValue(obj["meals"])
		filled[idx] = true
	}
	cycleMissing(w, filled)
}

func dayKeyed(obj map[string]any) bool {
	for k := range obj {
		if _, ok := DayIndex(k); ok {
			return true
		}
	}
	return false
}

func fillFromDayKeyed(w Week, obj map[string]any) {
	filled := make([]bool, 7)
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		idx, ok := DayIndex(k)
		if !ok || filled[idx] {
			continue
		}
		w[idx].Meals = mealsFromValue(obj[k])
		filled[idx] = len(w[idx].Meals) > 0
	}
	cycleMissing(w, filled)
}

// fillFromFlat buckets meals by type and rotates each bucket through the week.
func fillFromFlat(w Week, items []any) {
	meals := mealsFromValue(items)
	if len(meals) == 0 {
		return
	}
	var order []string
	buckets := map[string][]Meal{}
	for _, m := range meals {
		if _, ok := buckets[m.Type]; !ok {
			order = append(order, m.Type)
		}
		buckets[m.Type] = append(buckets[m.Type], m)
	}
	for i := range w {
		day := make([]Meal, 0, len(order))
		for _, t := range order {
			b := buckets[t]
			day = append(day, b[i%len(b)])
		}
		w[i].Meals = cloneMeals(day)
	}
}

// cycleMissing copies present days onto days the model skipped.
func cycleMissing(w Week, filled []bool) {
	var present []int
	for i, ok := range filled {
		if ok {
			present = append(present, i)
		}
	}
	if len(present) == 0 {
		return
	}
	n := 0
	for i := range w {
		if filled[i] {
			continue
		}
		w[i].Meals = cloneMeals(w[present[n%len(present)]].Meals)
		n++
	}
}

/* ─── Meal decoding ──────────────────────────────────────────────────── */

// mealsFromValue decodes a day's value: a list of meals, an object with a
// "meals" list, or an object keyed by slot label.
func mealsFromValue(v any) []Meal {
	switch t := v.(type) {
	case []any:
		var out []Meal
		for i, it := range t {
			if m, ok := mealFromItem("", it, i); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		if inner, ok := t["meals"]; ok {
			return mealsFromValue(inner)
		}
		return mealsFromDay(t)
	case string:
		if m, ok := mealFromItem("", t, 0); ok {
			return []Meal{m}
		}
	}
	return nil
}

// mealsFromDay reads an object keyed by slot label ("Desayuno": "...").
// Keys are visited in a stable order with known meal types first.
func mealsFromDay(obj map[string]any) []Meal {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return slotRank(keys[i]) < slotRank(keys[j]) ||
			(slotRank(keys[i]) == slotRank(keys[j]) && keys[i] < keys[j])
	})
	var out []Meal
	for i, k := range keys {
		if _, ok := ClassifyMealType(k); !ok {
			continue
		}
		if m, ok := mealFromItem(k, obj[k], i); ok {
			out = append(out, m)
		}
	}
	return out
}

func slotRank(label string) int {
	t, ok := ClassifyMealType(label)
	if !ok {
		return 4
	}
	switch t {
	case Breakfast:
		return 0
	case Lunch:
		return 1
	case Snack:
		return 2
	default:
		return 3
	}
}

// mealFromItem decodes one slot. label is the key it was found under, if any.
func mealFromItem(label string, v any, pos int) (Meal, bool) {
	var m Meal
	var text string
	switch t := v.(type) {
	case string:
		text = strings.TrimSpace(t)
		if text == "" {
			return m, false
		}
	case map[string]any:
		m.Name = firstString(t, "name", "title", "dish", "nombre", "titulo", "meal_name")
		text = firstString(t, "description", "text", "details", "descripcion", "content")
		if label == "" {
			label = firstString(t, "type", "meal", "slot", "tipo", "meal_type", "time")
		}
		m.Ingredients = ingredientsFrom(t)
		m.FreeTextItems = stringsFrom(t, "items", "foods", "alimentos", "free_text_items")
		if m.Name == "" && text == "" && len(m.Ingredients) == 0 && len(m.FreeTextItems) == 0 {
			return m, false
		}
	default:
		return m, false
	}

	typ, ok := ClassifyMealType(label)
	if !ok {
		typ, ok = ClassifyMealType(m.Name)
	}
	if !ok {
		typ = guessByPosition(pos)
	}
	m.Type = typ

	if text != "" {
		if len(m.Ingredients) == 0 {
			m.Ingredients = ParseIngredients(text)
		}
		if len(m.FreeTextItems) == 0 && len(m.Ingredients) == 0 {
			m.FreeTextItems = Clauses(text)
		}
	}
	if m.Name == "" {
		m.Name = TitleFrom(text)
	}
	if m.Name == "" && len(m.Ingredients) > 0 {
		m.Name = capitalize(m.Ingredients[0].Name)
	}
	if m.Name == "" && len(m.FreeTextItems) > 0 {
		m.Name = TitleFrom(m.FreeTextItems[0])
	}
	if m.Name == "" {
		m.Name = m.Type
	}
	return m, true
}

func guessByPosition(pos int) string {
	switch pos {
	case 0:
		return Breakfast
	case 1:
		return Lunch
	case 2:
		return Dinner
	default:
		return Snack
	}
}

func ingredientsFrom(obj map[string]any) []Ingredient {
	raw, ok := obj["ingredients"]
	if !ok {
		raw, ok = obj["ingredientes"]
	}
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case string:
		return ParseIngredients(t)
	case []any:
		var out []Ingredient
		for _, it := range t {
			switch iv := it.(type) {
			case string:
				if parsed := ParseIngredients(iv); len(parsed) > 0 {
					out = append(out, parsed...)
				} else if s := strings.TrimSpace(iv); s != "" {
					out = append(out, Ingredient{Name: s})
				}
			case map[string]any:
				name := firstString(iv, "name", "nombre", "item", "food")
				if name == "" {
					continue
				}
				ing := Ingredient{Name: name, Unit: unitAliases[strings.ToLower(firstString(iv, "unit", "unidad", "uom"))]}
				if q, ok := iv["quantity"].(float64); ok {
					ing.Quantity = q
				} else if q, ok := iv["qty"].(float64); ok {
					ing.Quantity = q
				} else if q, ok := iv["grams"].(float64); ok {
					ing.Quantity, ing.Unit = q, "g"
				}
				out = append(out, ing)
			}
		}
		return out
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func stringsFrom(obj map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			var out []string
			for _, it := range v {
				if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if c := Clauses(v); len(c) > 0 {
				return c
			}
		}
	}
	return nil
}

func cloneMeals(in []Meal) []Meal {
	out := make([]Meal, len(in))
	for i, m := range in {
		m.Ingredients = append([]Ingredient(nil), m.Ingredients...)
		m.FreeTextItems = append([]string(nil), m.FreeTextItems...)
		out[i] = m
	}
	return out
}
