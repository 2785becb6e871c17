package mealplan

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ingredient is a parsed "name (quantity unit)" mention.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

var ingredientRe = regexp.MustCompile(`(?i)([^,;:()\n+]+?)\s*\(\s*(\d+(?:[.,]\d+)?)\s*(kg|kilos?|g|gr|grams?|gramos?|ml|mililitros?|l|lt|liters?|litres?|litros?|servings?|porci[oó]n(?:es)?|units?|unidad(?:es)?|pcs?|piezas?)\.?\s*\)`)

var quantityOnlyRe = regexp.MustCompile(`(?i)^[\d.,/\s]*(kg|g|gr|grams?|gramos?|ml|l|cups?|tazas?|tbsp|tsp|servings?|porci[oó]n(?:es)?|units?|unidad(?:es)?)?\.?$`)

var unitAliases = map[string]string{
	"kg": "kg", "kilo": "kg", "kilos": "kg",
	"g": "g", "gr": "g", "gram": "g", "grams": "g", "gramo": "g", "gramos": "g",
	"ml": "ml", "mililitro": "ml", "mililitros": "ml",
	"l": "l", "lt": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l", "litro": "l", "litros": "l",
	"serving": "serving", "servings": "serving", "porcion": "serving", "porción": "serving", "porciones": "serving",
	"unit": "unit", "units": "unit", "unidad": "unit", "unidades": "unit", "pc": "unit", "pcs": "unit",
	"pieza": "unit", "piezas": "unit",
}

// ParseIngredients finds every "name (quantity unit)" mention in text.
func ParseIngredients(text string) []Ingredient {
	var out []Ingredient
	for _, m := range ingredientRe.FindAllStringSubmatch(text, -1) {
		name := cleanName(m[1])
		if name == "" {
			continue
		}
		qty, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
		if err != nil {
			continue
		}
		unit := unitAliases[strings.ToLower(m[3])]
		out = append(out, Ingredient{Name: name, Quantity: qty, Unit: unit})
	}
	return out
}

// Clauses splits free text into item-sized pieces.
func Clauses(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '+' || r == '•'
	})
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*·"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TitleFrom synthesizes a meal title from the first clause of text that is
// not just a quantity.
func TitleFrom(text string) string {
	for _, c := range Clauses(text) {
		c = stripParens(c)
		c = strings.TrimSpace(strings.TrimRight(c, ".:"))
		if c == "" || quantityOnlyRe.MatchString(c) {
			continue
		}
		c = stripLeadingQuantity(c)
		if c == "" {
			continue
		}
		if utf8.RuneCountInString(c) > 60 {
			c = string([]rune(c)[:60])
		}
		return capitalize(c)
	}
	return ""
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*·• ")
	s = stripLeadingQuantity(s)
	lower := strings.ToLower(s)
	for _, filler := range []string{"and ", "y ", "with ", "con "} {
		if strings.HasPrefix(lower, filler) {
			s = strings.TrimSpace(s[len(filler):])
			break
		}
	}
	return s
}

func stripParens(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// stripLeadingQuantity drops a leading "200 g " or "2 " from an item.
func stripLeadingQuantity(s string) string {
	fields := strings.Fields(s)
	i := 0
	if i < len(fields) && startsWithDigit(fields[i]) {
		i++
		if i < len(fields) && unitAliases[strings.ToLower(strings.TrimSuffix(fields[i], "."))] != "" {
			i++
		}
		if i < len(fields) && (strings.EqualFold(fields[i], "of") || strings.EqualFold(fields[i], "de")) {
			i++
		}
	}
	return strings.Join(fields[i:], " ")
}

func startsWithDigit(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsDigit(r)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
