package advice

import (
	"fmt"
	"strings"

	"lg/nutrition-advice-api/internal/extract"
	"lg/nutrition-advice-api/internal/mealplan"
	"lg/nutrition-advice-api/internal/nutrition"
)

// Block labels the prompt asks the model to emit.
const (
	LabelSummary   = "SUMMARY"
	LabelMeals     = "MEALS"
	LabelHydration = "HYDRATION"
	LabelBeverages = "BEVERAGES"
)

// Result is a complete plan as served to clients and cached.
type Result struct {
	Advice    string            `json:"advice"`
	Summary   nutrition.Summary `json:"summary"`
	Meals     Meals             `json:"meals"`
	Hydration Hydration         `json:"hydration"`
	Beverages Beverages         `json:"beverages"`
	Weekly    mealplan.Week     `json:"weekly"`
	Model     string            `json:"model"`
	TookMs    int64             `json:"took_ms"`
	Fallback  bool              `json:"fallback"`
	Cached    bool              `json:"cached"`
	State     State             `json:"state"`
	Attempts  []Attempt         `json:"attempts,omitempty"`
}

type Meals struct {
	Items    []mealplan.Meal     `json:"items"`
	Variants map[string][]string `json:"variants,omitempty"`
}

type Hydration struct {
	Liters float64 `json:"liters"`
}

type Beverages struct {
	Items []string `json:"items"`
}

// Inputs is what assembly needs besides the model output.
type Inputs struct {
	Profile    nutrition.Profile
	SavedFoods []nutrition.SavedFood
}

// Assembler turns model text into a Result, filling every section the text
// does not provide from the calculator.
type Assembler struct {
	calc *nutrition.Calculator
	ext  *extract.Extractor
}

func NewAssembler(calc *nutrition.Calculator) *Assembler {
	if calc == nil {
		calc = nutrition.NewCalculator()
	}
	return &Assembler{calc: calc, ext: extract.New()}
}

// FromText builds a result from a model answer. Missing or unparseable
// blocks are not errors.
func (a *Assembler) FromText(text string, in Inputs) (Result, error) {
	var ai nutrition.Summary
	a.ext.ExtractInto(LabelSummary, text, &ai)
	summary, err := a.calc.Sanitize(in.Profile, ai)
	if err != nil {
		return Result{}, err
	}

	week := mealplan.EmptyWeek()
	// Unlabeled matches can be any block of the answer; only a meal-shaped
	// one is trusted.
	if raw, how, ok := a.ext.Extract(LabelMeals, text); ok && (how == extract.StrategyLabeled || mealplan.LooksLikeMeals(raw)) {
		week = mealplan.Normalize(raw)
	}
	week = a.planWeek(week, in, summary)

	res := Result{
		Advice:    extract.Strip(text, LabelSummary, LabelMeals, LabelHydration, LabelBeverages),
		Summary:   summary,
		Hydration: Hydration{Liters: a.hydration(text, in.Profile)},
		Beverages: Beverages{Items: a.beverages(text, in.Profile)},
		Weekly:    week,
		Meals:     Meals{Items: week.Template(), Variants: week.Variants()},
	}
	if res.Advice == "" {
		res.Advice = localAdvice(in.Profile, summary)
	}
	return res, nil
}

// Local builds a result without the provider.
func (a *Assembler) Local(in Inputs) (Result, error) {
	summary, err := a.calc.Compute(in.Profile)
	if err != nil {
		return Result{}, err
	}
	week := a.planWeek(mealplan.EmptyWeek(), in, summary)
	return Result{
		Advice:    localAdvice(in.Profile, summary),
		Summary:   summary,
		Hydration: Hydration{Liters: a.calc.HydrationLiters(in.Profile)},
		Beverages: Beverages{Items: nutrition.DefaultBeverages(in.Profile)},
		Weekly:    week,
		Meals:     Meals{Items: week.Template(), Variants: week.Variants()},
		Fallback:  true,
		State:     StateLocalFallback,
		Model:     "local",
	}, nil
}

// planWeek enforces the configured meals, falls back to a local week when
// the model gave none, and spreads the protein target.
func (a *Assembler) planWeek(week mealplan.Week, in Inputs, s nutrition.Summary) mealplan.Week {
	want := mealplan.CanonicalTypes(in.Profile.MealTypes)
	if week.Template() == nil {
		week = mealplan.LocalWeek(want, in.SavedFoods)
	} else {
		week = mealplan.Enforce(week, want, in.SavedFoods)
	}
	mealplan.DistributeProtein(week, s.ProteinG)
	return week
}

func (a *Assembler) hydration(text string, p nutrition.Profile) float64 {
	var h struct {
		Liters float64 `json:"liters"`
		Litros float64 `json:"litros"`
	}
	if a.ext.ExtractInto(LabelHydration, text, &h) {
		l := h.Liters
		if l == 0 {
			l = h.Litros
		}
		if l >= 1 && l <= 6 {
			return l
		}
	}
	return a.calc.HydrationLiters(p)
}

func (a *Assembler) beverages(text string, p nutrition.Profile) []string {
	raw, _, ok := a.ext.Extract(LabelBeverages, text)
	if ok {
		if obj, isObj := raw.(map[string]any); isObj {
			raw = obj["items"]
		}
		if list, isList := raw.([]any); isList {
			var out []string
			for _, it := range list {
				switch v := it.(type) {
				case string:
					if s := strings.TrimSpace(v); s != "" {
						out = append(out, s)
					}
				case map[string]any:
					if name, _ := v["name"].(string); strings.TrimSpace(name) != "" {
						out = append(out, strings.TrimSpace(name))
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nutrition.DefaultBeverages(p)
}

func localAdvice(p nutrition.Profile, s nutrition.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your estimated maintenance is %.0f kcal per day; aim for %.0f kcal.", s.TDEE, s.KcalTarget)
	fmt.Fprintf(&b, " Daily macros: %.0f g protein, %.0f g fat, %.0f g carbohydrates.", s.ProteinG, s.FatG, s.CarbG)
	switch p.GoalKind() {
	case nutrition.GoalLoseFat:
		fmt.Fprintf(&b, " At this deficit expect about %.2f kg less per week.", -s.WeeklyPaceKg)
	case nutrition.GoalGainMuscle:
		fmt.Fprintf(&b, " At this surplus expect about %.2f kg more per week; pair it with resistance training.", s.WeeklyPaceKg)
	default:
		b.WriteString(" Keep intake steady and adjust if your weight drifts for more than two weeks.")
	}
	if s.ETADate != "" {
		fmt.Fprintf(&b, " You could reach %.1f kg around %s.", s.TargetWeight, s.ETADate)
	}
	return b.String()
}
