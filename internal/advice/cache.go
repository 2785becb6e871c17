package advice

import (
	"context"
	"strings"
	"time"
)

// CacheEntry is the one cached result per user.
type CacheEntry struct {
	UserID      int       `json:"user_id"`
	ProfileHash string    `json:"profile_hash"`
	Result      Result    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheStore persists CacheEntry records. Writes are last-writer-wins.
type CacheStore interface {
	// Get returns nil, nil when the user has no entry.
	Get(ctx context.Context, userID int) (*CacheEntry, error)
	Put(ctx context.Context, e CacheEntry) error
	Delete(ctx context.Context, userID int) error
}

var placeholderPhrases = []string{"lorem ipsum", "[insert", "as an ai language model"}

// LegacyReason explains why a cached result must not be served, or returns
// "" when it is usable.
func LegacyReason(r Result) string {
	switch {
	case strings.TrimSpace(r.Advice) == "":
		return "missing advice text"
	case r.Summary.KcalTarget <= 0:
		return "missing summary"
	case len(r.Weekly) != 7:
		return "missing weekly plan"
	case r.Fallback:
		return "fallback result"
	}
	if strings.Contains(r.Advice, "TODO") {
		return "placeholder text"
	}
	lower := strings.ToLower(r.Advice)
	for _, p := range placeholderPhrases {
		if strings.Contains(lower, p) {
			return "placeholder text"
		}
	}
	return ""
}
