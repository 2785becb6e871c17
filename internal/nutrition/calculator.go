package nutrition

import (
	"math"
	"strings"
	"time"
)

// Band is an inclusive [Min, Max] range in kcal/day.
type Band struct {
	Min float64
	Max float64
}

func (b Band) clamp(v float64) float64 {
	return math.Min(b.Max, math.Max(b.Min, v))
}

// Policy carries the product constants behind the heuristic plan. These are
// policy choices rather than physiological facts and may be tuned.
type Policy struct {
	KcalPerKg float64 // energy equivalent of 1 kg of body mass

	LossBand        Band
	GainBand        Band
	MaintenanceBand Band

	// Daily deltas by speed keyword.
	LossDelta map[string]float64
	GainDelta map[string]float64

	// Minimum daily target. For a loss goal it is capped at TDEE, so a
	// maintenance below the floor yields a zero delta, never a surplus.
	CalorieFloorMale   float64
	CalorieFloorFemale float64

	ProteinPerKg          map[string]float64 // keyed by goal
	FatShare              float64            // fraction of kcal target from fat
	DefaultActivityFactor float64

	MinETAWeeks float64
	MaxETAWeeks float64
	// Fallback kg/week when the derived pace is unusable.
	SpeedPaceKg map[string]float64

	WaterMlPerKg float64
}

// DefaultPolicy returns the production constants.
func DefaultPolicy() Policy {
	return Policy{
		KcalPerKg:       7700,
		LossBand:        Band{Min: -900, Max: -250},
		GainBand:        Band{Min: 150, Max: 700},
		MaintenanceBand: Band{Min: -120, Max: 150},
		LossDelta:       map[string]float64{"slow": -250, "moderate": -500, "fast": -700},
		GainDelta:       map[string]float64{"slow": 200, "moderate": 300, "fast": 450},

		CalorieFloorMale:   1200,
		CalorieFloorFemale: 1100,

		ProteinPerKg: map[string]float64{
			GoalMaintenance: 1.6,
			GoalLoseFat:     1.7,
			GoalGainMuscle:  1.9,
		},
		FatShare:              0.25,
		DefaultActivityFactor: 1.25,

		MinETAWeeks: 0.5,
		MaxETAWeeks: 156,
		SpeedPaceKg: map[string]float64{"fast": 0.9, "moderate": 0.6, "slow": 0.4, "": 0.5},

		WaterMlPerKg: 35,
	}
}

// Summary is the numeric part of a plan. Zero means "unknown".
type Summary struct {
	TMB              float64 `json:"tmb"`
	TDEE             float64 `json:"tdee"`
	KcalTarget       float64 `json:"kcal_target"`
	DeficitOrSurplus float64 `json:"deficit_or_surplus"`
	WeeklyPaceKg     float64 `json:"weekly_pace_kg"`
	ProteinG         float64 `json:"protein_g"`
	FatG             float64 `json:"fat_g"`
	CarbG            float64 `json:"carb_g"`
	ETAWeeks         float64 `json:"eta_weeks"`
	ETADate          string  `json:"eta_date,omitempty"`
	CurrentWeight    float64 `json:"current_weight"`
	TargetWeight     float64 `json:"target_weight"`
}

// Calculator derives a plan summary from profile fields alone.
type Calculator struct {
	Policy Policy
	Now    func() time.Time
}

// NewCalculator returns a calculator with the default policy and wall clock.
func NewCalculator() *Calculator {
	return &Calculator{Policy: DefaultPolicy(), Now: time.Now}
}

// Compute builds a summary from scratch.
func (c *Calculator) Compute(p Profile) (Summary, error) {
	return c.Sanitize(p, Summary{})
}

// Sanitize completes s from the profile. Each value is kept only when
// present and plausible; otherwise it is re-derived, and the calorie delta is
// always forced into the goal's band so externally supplied numbers cannot
// drift away from the stated goal and speed.
func (c *Calculator) Sanitize(p Profile, s Summary) (Summary, error) {
	now := c.now()
	if p.MissingStep(now) == StepBodyMetrics {
		return Summary{}, ErrIncompleteProfile
	}
	pol := c.Policy
	weight := num(p.WeightKG)
	goal := p.GoalKind()
	speed := SpeedKeyword(str(p.ChangeSpeed))

	// 1. BMR (Mifflin-St Jeor).
	bmr := 10*weight + 6.25*num(p.HeightCM) - 5*float64(p.Age(now))
	if p.IsMale() {
		bmr += 5
	} else {
		bmr -= 161
	}
	if !near(s.TMB, bmr, 0.15) {
		s.TMB = bmr
	}

	// 2. TDEE.
	tdee := s.TMB * c.ActivityFactor(str(p.ActivityLevel))
	if !near(s.TDEE, tdee, 0.15) {
		s.TDEE = tdee
	}

	// 3. Calorie target, delta clamped to the goal band, then floored.
	// A loss goal never ends above maintenance.
	var delta float64
	if s.KcalTarget > 0 {
		delta = s.KcalTarget - s.TDEE
	} else {
		delta = c.goalDelta(goal, speed)
	}
	delta = c.band(goal).clamp(delta)
	kcal := s.TDEE + delta
	floor := pol.CalorieFloorFemale
	if p.IsMale() {
		floor = pol.CalorieFloorMale
	}
	if kcal < floor {
		kcal = floor
	}
	if goal == GoalLoseFat && kcal > s.TDEE {
		kcal = s.TDEE
	}
	s.KcalTarget = math.Round(kcal)
	s.TDEE = math.Round(s.TDEE)
	s.TMB = math.Round(s.TMB)
	delta = s.KcalTarget - s.TDEE
	s.DeficitOrSurplus = delta

	// 4. Protein.
	switch {
	case p.DailyProteinG != nil && *p.DailyProteinG > 0:
		s.ProteinG = *p.DailyProteinG
	case s.ProteinG >= weight*1.2 && s.ProteinG <= weight*2.5:
	default:
		s.ProteinG = weight * pol.ProteinPerKg[goal]
	}
	s.ProteinG = math.Round(s.ProteinG)

	// 5. Fat, kept only while it stays within 15-40% of the target.
	if share := s.FatG * 9 / s.KcalTarget; s.FatG <= 0 || share < 0.15 || share > 0.40 {
		s.FatG = s.KcalTarget * pol.FatShare / 9
	}
	s.FatG = math.Round(s.FatG)

	// 6. Carbohydrates take whatever is left.
	s.CarbG = math.Max(0, math.Round((s.KcalTarget-s.ProteinG*4-s.FatG*9)/4))

	// 7. Weekly pace follows the delta's sign.
	s.WeeklyPaceKg = round2(delta * 7 / pol.KcalPerKg)

	// 8. ETA.
	s.CurrentWeight = weight
	s.TargetWeight = weight
	s.ETAWeeks, s.ETADate = 0, ""
	if p.TargetWeightKG != nil && *p.TargetWeightKG > 0 {
		s.TargetWeight = *p.TargetWeightKG
	}
	if diff := math.Abs(s.CurrentWeight - s.TargetWeight); diff > 0 && goal != GoalMaintenance {
		pace := math.Abs(s.WeeklyPaceKg)
		if pace < 0.01 {
			pace = pol.SpeedPaceKg[speedOrEmpty(str(p.ChangeSpeed))]
		}
		weeks := math.Min(pol.MaxETAWeeks, math.Max(pol.MinETAWeeks, diff/pace))
		s.ETAWeeks = math.Round(weeks*10) / 10
		s.ETADate = now.AddDate(0, 0, int(math.Round(weeks*7))).Format("2006-01-02")
	}
	return s, nil
}

// ActivityFactor maps a free-text activity level to a TDEE multiplier.
func (c *Calculator) ActivityFactor(level string) float64 {
	l := strings.ToLower(strings.TrimSpace(level))
	switch {
	case l == "":
		return c.Policy.DefaultActivityFactor
	case containsAny(l, "very", "muy", "extra", "athlete", "intense"):
		return 1.9
	case containsAny(l, "sedentary", "sedentario", "none"):
		return 1.2
	case containsAny(l, "light", "ligero", "leve", "low"):
		return 1.35
	case containsAny(l, "moderate", "moderado", "medium"):
		return 1.5
	case containsAny(l, "active", "activo", "high"):
		return 1.6
	default:
		return c.Policy.DefaultActivityFactor
	}
}

// SpeedKeyword reduces a declared change speed to slow, moderate or fast.
func SpeedKeyword(speed string) string {
	if s := speedOrEmpty(speed); s != "" {
		return s
	}
	return "moderate"
}

func speedOrEmpty(speed string) string {
	s := strings.ToLower(speed)
	switch {
	case containsAny(s, "fast", "rapid", "rápid", "aggressive", "quick"):
		return "fast"
	case containsAny(s, "slow", "lent", "gradual", "gentle"):
		return "slow"
	case containsAny(s, "moderate", "moderad", "medium", "normal"):
		return "moderate"
	default:
		return ""
	}
}

func (c *Calculator) goalDelta(goal, speed string) float64 {
	switch goal {
	case GoalLoseFat:
		return c.Policy.LossDelta[speed]
	case GoalGainMuscle:
		return c.Policy.GainDelta[speed]
	default:
		return 0
	}
}

func (c *Calculator) band(goal string) Band {
	switch goal {
	case GoalLoseFat:
		return c.Policy.LossBand
	case GoalGainMuscle:
		return c.Policy.GainBand
	default:
		return c.Policy.MaintenanceBand
	}
}

func (c *Calculator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// near reports whether v is positive and within tol (fractional) of ref.
func near(v, ref, tol float64) bool {
	if v <= 0 || ref <= 0 {
		return false
	}
	return math.Abs(v-ref)/ref <= tol
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
