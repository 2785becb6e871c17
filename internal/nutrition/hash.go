package nutrition

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Hash fingerprints the profile fields that influence the generated plan.
// Keys are sorted before serializing, so the result does not depend on field
// order; fields outside the influencing subset (display name, timestamps)
// never reach the digest.
func Hash(p Profile) string {
	fields := map[string]string{
		"sex":              lower(p.Sex),
		"height_cm":        decimal(p.HeightCM),
		"weight_kg":        decimal(p.WeightKG),
		"goal":             lower(p.Goal),
		"activity_level":   lower(p.ActivityLevel),
		"change_speed":     lower(p.ChangeSpeed),
		"country":          lower(p.Country),
		"target_weight_kg": decimal(p.TargetWeightKG),
		"daily_protein_g":  decimal(p.DailyProteinG),
		"food_preferences": setJSON(p.FoodPreferences),
		// Meal order is significant, so it is not sorted.
		"meal_types": listJSON(p.MealTypes),
	}
	if p.DateOfBirth != nil && !p.DateOfBirth.IsZero() {
		fields["date_of_birth"] = p.DateOfBirth.Format("2006-01-02")
	} else {
		fields["date_of_birth"] = ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, _ := json.Marshal(fields[k])
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func lower(s *string) string {
	return strings.ToLower(str(s))
}

func decimal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 1, 64)
}

// setJSON encodes the trimmed, lower-cased, de-duplicated items as a sorted
// JSON array, so an item containing a comma cannot collide with two items.
func setJSON(items []string) string {
	seen := map[string]bool{}
	out := []string{}
	for _, it := range items {
		v := strings.ToLower(strings.TrimSpace(it))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return encodeList(out)
}

// listJSON is setJSON without sorting or de-duplication.
func listJSON(items []string) string {
	out := []string{}
	for _, it := range items {
		if v := strings.ToLower(strings.TrimSpace(it)); v != "" {
			out = append(out, v)
		}
	}
	return encodeList(out)
}

func encodeList(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}
