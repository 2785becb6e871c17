package advice

import (
	"context"
	"errors"
	"strings"
	"time"

	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/platform/httpx"
	"lg/nutrition-advice-api/internal/platform/logger"
)

// State is a rung of the generation ladder.
type State string

const (
	StateFlashPrimary       State = "flash_primary"
	StateLongAfterFlashFail State = "long_after_flash_fail"
	StateShortAfterLongFail State = "short_after_long_fail"
	StateLongPrimary        State = "long_primary"
	StateShortFallback      State = "short_fallback"
	StateLocalFallback      State = "local_fallback"
	StateDone               State = "done"
)

// escalateTo builds a transition row: success ends the ladder, an
// unrecoverable provider error jumps to the local plan, anything else moves
// to next.
func escalateTo(next State) map[llm.Class]State {
	return map[llm.Class]State{
		llm.ClassNone:       StateDone,
		llm.ClassTransient:  next,
		llm.ClassOverloaded: next,
		llm.ClassTimeout:    next,
		llm.ClassMalformed:  next,
		llm.ClassOther:      next,
		llm.ClassQuota:      StateLocalFallback,
		llm.ClassPermission: StateLocalFallback,
	}
}

// transitions is the escalation policy: state x error class -> next state.
var transitions = map[State]map[llm.Class]State{
	StateFlashPrimary:       escalateTo(StateLongAfterFlashFail),
	StateLongAfterFlashFail: escalateTo(StateShortAfterLongFail),
	StateShortAfterLongFail: escalateTo(StateLocalFallback),
	StateLongPrimary:        escalateTo(StateShortFallback),
	StateShortFallback:      escalateTo(StateLocalFallback),
}

// Next returns the state that follows s after an attempt ending in class.
func Next(s State, class llm.Class) State {
	row, ok := transitions[s]
	if !ok {
		return StateLocalFallback
	}
	next, ok := row[class]
	if !ok {
		return StateLocalFallback
	}
	return next
}

// InitialState is where the ladder starts for o.
func InitialState(o Options) State {
	if o.ForceLong {
		return StateLongPrimary
	}
	return StateFlashPrimary
}

type tier struct {
	state   State
	model   string
	timeout time.Duration
	reduced bool
}

func (o Options) tier(s State) tier {
	switch s {
	case StateFlashPrimary:
		return tier{state: s, model: o.FlashModel, timeout: o.FlashTimeout}
	case StateLongAfterFlashFail, StateLongPrimary:
		return tier{state: s, model: o.LongModel, timeout: o.LongTimeout}
	default:
		return tier{state: s, model: o.FlashModel, timeout: o.ShortTimeout, reduced: true}
	}
}

// Attempt is one call to the provider, reported in responses for diagnostics.
type Attempt struct {
	State     State  `json:"state"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Outcome is what the ladder produced. Text is empty when every tier failed
// and State is StateLocalFallback.
type Outcome struct {
	Text      string
	Model     string
	State     State
	Attempts  []Attempt
	LastClass llm.Class
	// SkipWait is set when the provider can never succeed for this request,
	// so the minimum-wait gate does not apply.
	SkipWait bool
}

// Ladder walks the tiers for one request.
type Ladder struct {
	gen           llm.Generator
	log           *logger.Logger
	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

func NewLadder(gen llm.Generator, cfg Config, log *logger.Logger) *Ladder {
	if log == nil {
		log = logger.Nop()
	}
	return &Ladder{
		gen:           gen,
		log:           log,
		retryAttempts: cfg.RetryAttempts,
		retryBase:     cfg.RetryBase,
		retryMax:      cfg.RetryMax,
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

// minFullLength is the shortest answer ensureFull accepts as complete.
const minFullLength = 1200

// Run executes the ladder. Each tier gets its own deadline derived from ctx,
// so a slow tier never eats into the next tier's budget.
func (l *Ladder) Run(ctx context.Context, p Prompts, o Options) Outcome {
	var out Outcome
	state := InitialState(o)
	for state != StateDone && state != StateLocalFallback {
		if ctx.Err() != nil {
			state = StateLocalFallback
			break
		}
		t := o.tier(state)
		prompt := p.Full
		if t.reduced {
			prompt = p.Reduced
		}
		resp, class := l.runTier(ctx, t, p.System, prompt, o, &out.Attempts)
		out.LastClass = class
		next := Next(state, class)
		l.log.Info("advice tier finished",
			"state", string(state),
			"model", t.model,
			"outcome", class.String(),
			"next", string(next),
		)
		if class == llm.ClassNone {
			out.Text, out.Model, out.State = resp.Text, resp.Model, state
			break
		}
		if class.Unrecoverable() {
			out.SkipWait = true
		}
		state = next
	}
	if out.Text == "" {
		out.State = StateLocalFallback
		return out
	}

	if o.EnsureFull && looksShort(out.Text) {
		t := tier{state: out.State, model: o.LongModel, timeout: o.LongTimeout * 3 / 2}
		resp, class := l.runTier(ctx, t, p.System, p.Extended, o, &out.Attempts)
		l.log.Info("advice ensure-full retry finished",
			"state", string(out.State),
			"model", t.model,
			"outcome", class.String(),
		)
		if class == llm.ClassNone && len(resp.Text) > len(out.Text) {
			out.Text, out.Model = resp.Text, resp.Model
		}
	}
	return out
}

// runTier calls the provider under the tier deadline. Transient errors are
// retried with backoff and an overloaded model is swapped for an alternate,
// both without leaving the tier.
func (l *Ladder) runTier(ctx context.Context, t tier, system, prompt string, o Options, log *[]Attempt) (llm.Response, llm.Class) {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	models := []string{t.model}
	for _, alt := range o.Alternates {
		if alt != "" && alt != t.model {
			models = append(models, alt)
		}
	}

	mi, retries := 0, 0
	for {
		start := l.now()
		resp, err := l.gen.Generate(tctx, llm.Request{
			Model:           models[mi],
			System:          system,
			Prompt:          prompt,
			Temperature:     o.Temperature,
			MaxOutputTokens: o.MaxOutputTokens,
		})
		class := llm.Classify(err)
		if class != llm.ClassNone && tctx.Err() != nil {
			// Whatever the call returned, the tier is out of time.
			class = llm.ClassTimeout
		}
		*log = append(*log, Attempt{
			State:     t.state,
			Model:     models[mi],
			Outcome:   class.String(),
			ElapsedMs: l.now().Sub(start).Milliseconds(),
		})

		switch class {
		case llm.ClassNone:
			if resp.Model == "" {
				resp.Model = models[mi]
			}
			return resp, class
		case llm.ClassTransient:
			if retries >= l.retryAttempts {
				return resp, class
			}
			d := httpx.Jitter(httpx.Backoff(l.retryBase, l.retryMax, retries))
			var perr *llm.ProviderError
			if errors.As(err, &perr) && perr.RetryAfter > d {
				d = min(perr.RetryAfter, l.retryMax)
			}
			retries++
			l.log.Warn("advice tier retrying",
				"state", string(t.state),
				"model", models[mi],
				"attempt", retries,
				"sleep", d.String(),
				"error", err.Error(),
			)
			if l.sleep(tctx, d) != nil {
				return resp, llm.ClassTimeout
			}
		case llm.ClassOverloaded:
			if mi+1 >= len(models) {
				return resp, class
			}
			mi++
			l.log.Warn("advice model overloaded, trying alternate",
				"state", string(t.state),
				"model", models[mi],
			)
		default:
			return resp, class
		}
	}
}

func looksShort(text string) bool {
	return len(text) < minFullLength || !strings.Contains(strings.ToUpper(text), "MEALS")
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
