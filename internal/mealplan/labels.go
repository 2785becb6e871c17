package mealplan

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical meal types.
const (
	Breakfast = "Breakfast"
	Lunch     = "Lunch"
	Dinner    = "Dinner"
	Snack     = "Snack"
)

// Days in canonical order.
var Days = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Full day names per language, accent-folded. Abbreviations only match exactly.
var dayNames = [7][]string{
	{"monday", "lunes", "segunda", "lundi", "lunedi", "montag"},
	{"tuesday", "martes", "terca", "mardi", "martedi", "dienstag"},
	{"wednesday", "miercoles", "quarta", "mercredi", "mercoledi", "mittwoch"},
	{"thursday", "jueves", "quinta", "jeudi", "giovedi", "donnerstag"},
	{"friday", "viernes", "sexta", "vendredi", "venerdi", "freitag"},
	{"saturday", "sabado", "samedi", "sabato", "samstag"},
	{"sunday", "domingo", "dimanche", "domenica", "sonntag"},
}

var dayAbbrev = [7][]string{
	{"mon", "lun"},
	{"tue", "tues", "mar"},
	{"wed", "mie", "mer"},
	{"thu", "thur", "thurs", "jue", "gio"},
	{"fri", "vie", "ven"},
	{"sat", "sab"},
	{"sun", "dom"},
}

// Checked in order; breakfast first so "petit dejeuner" is not read as lunch.
var mealKeywords = []struct {
	kind  string
	words []string
}{
	{Breakfast, []string{"breakfast", "desayuno", "cafe da manha", "pequeno almoco", "petit dejeuner", "colazione", "fruhstuck", "brunch"}},
	{Snack, []string{"snack", "merienda", "colacion", "tentempie", "media manana", "lanche", "collation", "spuntino", "gouter"}},
	{Lunch, []string{"lunch", "almuerzo", "comida", "almoco", "dejeuner", "pranzo", "mittag"}},
	{Dinner, []string{"dinner", "cena", "jantar", "diner", "supper", "abendessen"}},
}

// Fold lower-cases s and strips diacritics ("Miércoles" -> "miercoles").
func Fold(s string) string {
	// Chained transformers carry state, so one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// DayIndex resolves a day label (any supported language, "day 3", "dia_3")
// to 0..6.
func DayIndex(label string) (int, bool) {
	key := Fold(label)
	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, key)
	for i, names := range dayNames {
		for _, n := range names {
			if strings.HasPrefix(letters, n) {
				return i, true
			}
		}
	}
	for i, abbrs := range dayAbbrev {
		for _, a := range abbrs {
			if letters == a {
				return i, true
			}
		}
	}
	for _, prefix := range []string{"day", "dia", "jour", "giorno", "tag", "d"} {
		if !strings.HasPrefix(letters, prefix) || len(letters) != len(prefix) {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, key)
		if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= 7 {
			return n - 1, true
		}
	}
	return 0, false
}

// ClassifyMealType maps a slot label or description to a canonical type.
// ok is false when no keyword matched and the caller's default applies.
func ClassifyMealType(label string) (string, bool) {
	key := Fold(label)
	if key == "" {
		return "", false
	}
	for _, mk := range mealKeywords {
		for _, w := range mk.words {
			if strings.Contains(key, w) {
				return mk.kind, true
			}
		}
	}
	return "", false
}
