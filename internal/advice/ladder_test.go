package advice

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"lg/nutrition-advice-api/internal/llm"
)

// fakeGen answers every call through fn; n is the zero-based call index.
type fakeGen struct {
	mu    sync.Mutex
	calls []llm.Request
	fn    func(ctx context.Context, req llm.Request, n int) (llm.Response, error)
}

func (f *fakeGen) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req, n)
}

func (f *fakeGen) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Model
	}
	return out
}

func ok(text string) (llm.Response, error) { return llm.Response{Text: text}, nil }

func providerErr(status int, msg string) error {
	return &llm.ProviderError{StatusCode: status, Message: msg}
}

var testPrompts = Prompts{System: "sys", Full: "full", Reduced: "reduced", Extended: "extended"}

func testOptions(f Flags) Options {
	cfg := DefaultConfig()
	cfg.FlashModel, cfg.LongModel, cfg.AlternateModels = "flash", "long", nil
	cfg.FlashTimeout, cfg.LongTimeout, cfg.ShortTimeout = time.Second, time.Second, time.Second
	return cfg.Resolve(f)
}

func testLadder(gen llm.Generator) *Ladder {
	return NewLadder(gen, Config{RetryAttempts: 2, RetryBase: time.Millisecond, RetryMax: 5 * time.Millisecond}, nil)
}

func TestNext_TransitionTable(t *testing.T) {
	cases := []struct {
		from  State
		class llm.Class
		want  State
	}{
		{StateFlashPrimary, llm.ClassNone, StateDone},
		{StateFlashPrimary, llm.ClassTimeout, StateLongAfterFlashFail},
		{StateFlashPrimary, llm.ClassOverloaded, StateLongAfterFlashFail},
		{StateFlashPrimary, llm.ClassQuota, StateLocalFallback},
		{StateLongAfterFlashFail, llm.ClassTransient, StateShortAfterLongFail},
		{StateLongAfterFlashFail, llm.ClassPermission, StateLocalFallback},
		{StateShortAfterLongFail, llm.ClassOther, StateLocalFallback},
		{StateLongPrimary, llm.ClassTimeout, StateShortFallback},
		{StateShortFallback, llm.ClassMalformed, StateLocalFallback},
		{StateLocalFallback, llm.ClassNone, StateLocalFallback},
	}
	for _, tc := range cases {
		if got := Next(tc.from, tc.class); got != tc.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tc.from, tc.class, got, tc.want)
		}
	}
}

func TestLadder_FlashSuccess(t *testing.T) {
	gen := &fakeGen{fn: func(context.Context, llm.Request, int) (llm.Response, error) { return ok("answer") }}
	out := testLadder(gen).Run(context.Background(), testPrompts, testOptions(Flags{}))
	if out.State != StateFlashPrimary || out.Text != "answer" || out.Model != "flash" {
		t.Fatalf("out = %+v", out)
	}
	if len(gen.calls) != 1 || gen.calls[0].Prompt != "full" || gen.calls[0].System != "sys" {
		t.Errorf("calls = %+v", gen.calls)
	}
}

// TestLadder_TimeoutGetsFreshDeadline verifies a timed-out tier does not eat
// into the next tier's budget.
func TestLadder_TimeoutGetsFreshDeadline(t *testing.T) {
	gen := &fakeGen{fn: func(ctx context.Context, req llm.Request, n int) (llm.Response, error) {
		if req.Model == "flash" {
			<-ctx.Done()
			return llm.Response{}, ctx.Err()
		}
		time.Sleep(60 * time.Millisecond)
		return ok("slow but fine")
	}}
	o := testOptions(Flags{})
	o.FlashTimeout, o.LongTimeout = 40*time.Millisecond, 500*time.Millisecond

	out := testLadder(gen).Run(context.Background(), testPrompts, o)
	if out.State != StateLongAfterFlashFail || out.Text != "slow but fine" {
		t.Fatalf("out = %+v", out)
	}
	if out.Attempts[0].Outcome != "timeout" || out.Attempts[1].Outcome != "ok" {
		t.Errorf("attempts = %+v", out.Attempts)
	}
}

func TestLadder_UnrecoverableSkipsToLocal(t *testing.T) {
	for name, err := range map[string]error{
		"quota":      providerErr(429, "Quota exceeded for metric"),
		"permission": providerErr(403, "denied"),
	} {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGen{fn: func(context.Context, llm.Request, int) (llm.Response, error) { return llm.Response{}, err }}
			out := testLadder(gen).Run(context.Background(), testPrompts, testOptions(Flags{}))
			if out.State != StateLocalFallback || !out.SkipWait {
				t.Fatalf("out = %+v", out)
			}
			if len(gen.calls) != 1 {
				t.Errorf("calls = %d, want 1", len(gen.calls))
			}
		})
	}
}

func TestLadder_OverloadedTriesAlternates(t *testing.T) {
	gen := &fakeGen{fn: func(_ context.Context, req llm.Request, _ int) (llm.Response, error) {
		if req.Model == "flash" {
			return llm.Response{}, providerErr(503, "The model is overloaded.")
		}
		return ok("from alternate")
	}}
	o := testOptions(Flags{})
	o.Alternates = []string{"flash", "flash-alt"}

	out := testLadder(gen).Run(context.Background(), testPrompts, o)
	if out.State != StateFlashPrimary || out.Model != "flash-alt" {
		t.Fatalf("out = %+v", out)
	}
	if got := gen.models(); strings.Join(got, ",") != "flash,flash-alt" {
		t.Errorf("models = %v", got)
	}
}

func TestLadder_TransientRetriesWithBackoff(t *testing.T) {
	gen := &fakeGen{fn: func(_ context.Context, _ llm.Request, n int) (llm.Response, error) {
		if n < 2 {
			return llm.Response{}, providerErr(429, "slow down")
		}
		return ok("third time")
	}}
	l := testLadder(gen)
	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out := l.Run(context.Background(), testPrompts, testOptions(Flags{}))
	if out.State != StateFlashPrimary || out.Text != "third time" {
		t.Fatalf("out = %+v", out)
	}
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(slept))
	}
	// 1ms then 2ms, each +-20%.
	if slept[0] < 800*time.Microsecond || slept[0] > 1200*time.Microsecond ||
		slept[1] < 1600*time.Microsecond || slept[1] > 2400*time.Microsecond {
		t.Errorf("backoff = %v", slept)
	}
}

func TestLadder_AllTiersFail(t *testing.T) {
	gen := &fakeGen{fn: func(context.Context, llm.Request, int) (llm.Response, error) {
		return llm.Response{}, providerErr(500, "internal")
	}}
	l := testLadder(gen)
	l.retryAttempts = 1

	out := l.Run(context.Background(), testPrompts, testOptions(Flags{}))
	if out.State != StateLocalFallback || out.SkipWait || out.Text != "" {
		t.Fatalf("out = %+v", out)
	}
	if got := strings.Join(gen.models(), ","); got != "flash,flash,long,long,flash,flash" {
		t.Errorf("models = %s", got)
	}
	if last := gen.calls[len(gen.calls)-1]; last.Prompt != "reduced" {
		t.Errorf("short tier prompt = %q, want reduced", last.Prompt)
	}
}

func TestLadder_ForcedLongPath(t *testing.T) {
	gen := &fakeGen{fn: func(context.Context, llm.Request, int) (llm.Response, error) {
		return llm.Response{}, providerErr(400, "bad request")
	}}
	out := testLadder(gen).Run(context.Background(), testPrompts, testOptions(Flags{ForceLong: true}))
	var states []string
	for _, a := range out.Attempts {
		states = append(states, string(a.State))
	}
	if got := strings.Join(states, ","); got != "long_primary,short_fallback" {
		t.Errorf("states = %s", got)
	}
	if got := strings.Join(gen.models(), ","); got != "long,flash" {
		t.Errorf("models = %s", got)
	}
}

func TestLadder_EnsureFull(t *testing.T) {
	long := "MEALS: [] " + strings.Repeat("detail ", 200)
	gen := &fakeGen{fn: func(_ context.Context, req llm.Request, _ int) (llm.Response, error) {
		if req.Prompt == "extended" {
			return ok(long)
		}
		return ok("SUMMARY: {}")
	}}

	out := testLadder(gen).Run(context.Background(), testPrompts, testOptions(Flags{EnsureFull: true}))
	if out.Text != long {
		t.Errorf("ensureFull kept the short answer")
	}
	if got := gen.models(); len(got) != 2 || got[1] != "long" {
		t.Errorf("models = %v", got)
	}

	gen.calls = nil
	out = testLadder(gen).Run(context.Background(), testPrompts, testOptions(Flags{}))
	if out.Text != "SUMMARY: {}" || len(gen.calls) != 1 {
		t.Errorf("without ensureFull: text %q, calls %d", out.Text, len(gen.calls))
	}
}

func TestLooksShort(t *testing.T) {
	if !looksShort("MEALS: []") {
		t.Error("short text not detected")
	}
	if !looksShort(strings.Repeat("x", 2000)) {
		t.Error("text without MEALS not detected")
	}
	if looksShort("meals: " + strings.Repeat("x", 2000)) {
		t.Error("complete text flagged")
	}
}
