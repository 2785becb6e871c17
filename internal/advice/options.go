package advice

import (
	"fmt"
	"strings"
	"time"

	"lg/nutrition-advice-api/internal/platform/envutil"
	"lg/nutrition-advice-api/internal/platform/httpx"
)

// Config holds process-wide defaults. Per-request Flags are resolved against
// it into Options.
type Config struct {
	FlashModel      string
	LongModel       string
	AlternateModels []string

	FlashTimeout time.Duration
	LongTimeout  time.Duration
	ShortTimeout time.Duration

	MinFallbackWait time.Duration
	Watchdog        time.Duration

	MaxOutputTokens int
	Temperature     float64

	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration
}

func DefaultConfig() Config {
	return Config{
		FlashModel:      "gemini-2.5-flash",
		LongModel:       "gemini-2.5-pro",
		AlternateModels: []string{"gemini-2.0-flash"},
		FlashTimeout:    60 * time.Second,
		LongTimeout:     120 * time.Second,
		ShortTimeout:    45 * time.Second,
		MinFallbackWait: 4 * time.Minute,
		Watchdog:        10 * time.Minute,
		MaxOutputTokens: 8192,
		Temperature:     0.6,
		RetryAttempts:   2,
		RetryBase:       time.Second,
		RetryMax:        8 * time.Second,
	}
}

// ConfigFromEnv overlays the ADVICE_* variables on DefaultConfig.
func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		FlashModel:      envutil.String("ADVICE_MODEL_FLASH", def.FlashModel),
		LongModel:       envutil.String("ADVICE_MODEL_LONG", def.LongModel),
		AlternateModels: envutil.List("ADVICE_MODEL_ALTERNATES", def.AlternateModels),
		FlashTimeout:    envutil.Millis("ADVICE_TIMEOUT_FLASH_MS", def.FlashTimeout),
		LongTimeout:     envutil.Millis("ADVICE_TIMEOUT_LONG_MS", def.LongTimeout),
		ShortTimeout:    envutil.Millis("ADVICE_TIMEOUT_SHORT_MS", def.ShortTimeout),
		MinFallbackWait: envutil.Millis("ADVICE_MIN_FALLBACK_MS", def.MinFallbackWait),
		Watchdog:        envutil.Millis("ADVICE_WATCHDOG_MS", def.Watchdog),
		MaxOutputTokens: envutil.Int("ADVICE_MAX_OUTPUT_TOKENS", def.MaxOutputTokens),
		Temperature:     envutil.Float("ADVICE_TEMPERATURE", def.Temperature),
		RetryAttempts:   envutil.Int("ADVICE_RETRY_ATTEMPTS", def.RetryAttempts),
		RetryBase:       envutil.Millis("ADVICE_RETRY_BASE_MS", def.RetryBase),
		RetryMax:        envutil.Millis("ADVICE_RETRY_MAX_MS", def.RetryMax),
	}
}

// Flag is a request switch. In JSON it accepts booleans, 0/1 and the
// strings "true", "false", "1", "0", "yes", "no", "on" and "off".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "1", "yes", "on":
		*f = true
	case "false", "0", "no", "off", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", data)
	}
	return nil
}

// Flags are the optional request parameters. Pointer fields distinguish
// "not sent" from zero.
type Flags struct {
	Invalidate Flag `json:"invalidate"`
	ForceLong  Flag `json:"forceLong"`
	EnsureFull Flag `json:"ensureFull"`
	Strict     Flag `json:"ai_strict"`
	Prefetch   Flag `json:"prefetch"`
	// Mode "long" is the same as ForceLong.
	Mode string `json:"mode"`

	MinFallbackMs   *int `json:"minFallbackMs"`
	FlashTimeoutMs  *int `json:"flashTimeoutMs"`
	LongTimeoutMs   *int `json:"longTimeoutMs"`
	ShortTimeoutMs  *int `json:"shortTimeoutMs"`
	MaxOutputTokens *int `json:"maxOutputTokens"`

	FlashModel string `json:"flashModel"`
	LongModel  string `json:"longModel"`
}

// Options is the resolved configuration of one generation request.
type Options struct {
	Invalidate bool
	ForceLong  bool
	EnsureFull bool
	Strict     bool
	Prefetch   bool
	// NoWait returns a local result instead of "pending" while another
	// generation runs, and skips the minimum-wait gate.
	NoWait bool

	MinFallbackWait time.Duration

	FlashModel string
	LongModel  string
	Alternates []string

	FlashTimeout time.Duration
	LongTimeout  time.Duration
	ShortTimeout time.Duration

	MaxOutputTokens int
	Temperature     float64
}

// Resolve applies f on top of the defaults. Strict mode doubles every tier
// timeout, raises the minimum wait to at least the longest tier timeout and
// ignores a request to skip waiting.
func (c Config) Resolve(f Flags) Options {
	o := Options{
		Invalidate:      bool(f.Invalidate),
		ForceLong:       bool(f.ForceLong) || strings.EqualFold(strings.TrimSpace(f.Mode), "long"),
		EnsureFull:      bool(f.EnsureFull),
		Strict:          bool(f.Strict),
		Prefetch:        bool(f.Prefetch),
		MinFallbackWait: c.MinFallbackWait,
		FlashModel:      pick(f.FlashModel, c.FlashModel),
		LongModel:       pick(f.LongModel, c.LongModel),
		Alternates:      append([]string(nil), c.AlternateModels...),
		FlashTimeout:    millisOr(f.FlashTimeoutMs, c.FlashTimeout),
		LongTimeout:     millisOr(f.LongTimeoutMs, c.LongTimeout),
		ShortTimeout:    millisOr(f.ShortTimeoutMs, c.ShortTimeout),
		MaxOutputTokens: c.MaxOutputTokens,
		Temperature:     c.Temperature,
	}
	if f.MaxOutputTokens != nil && *f.MaxOutputTokens > 0 {
		o.MaxOutputTokens = *f.MaxOutputTokens
	}
	if f.MinFallbackMs != nil && *f.MinFallbackMs >= 0 {
		o.MinFallbackWait = time.Duration(*f.MinFallbackMs) * time.Millisecond
		o.NoWait = *f.MinFallbackMs == 0
	}

	if o.Strict {
		o.FlashTimeout *= 2
		o.LongTimeout *= 2
		o.ShortTimeout *= 2
		o.NoWait = false
		longest := max(o.FlashTimeout, o.LongTimeout, o.ShortTimeout)
		o.MinFallbackWait = max(o.MinFallbackWait, longest)
	}
	return o
}

func pick(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func millisOr(ms *int, def time.Duration) time.Duration {
	if ms == nil || *ms <= 0 {
		return def
	}
	return time.Duration(*ms) * time.Millisecond
}

const (
	pollBase = 2 * time.Second
	pollMax  = 30 * time.Second
)

// PollDelay is the retry-after hint for the n-th poll: 2s doubling per poll,
// capped at 30s.
func PollDelay(poll int) time.Duration {
	return httpx.Backoff(pollBase, pollMax, max(poll, 0))
}
