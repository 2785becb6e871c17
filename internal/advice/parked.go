package advice

import (
	"sync"
	"time"
)

// parked holds local plans produced by background generations. Fallbacks
// are never cached, so the poll that follows a failed prefetch picks its
// plan up here, once, after the minimum wait has passed.
type parked struct {
	mu      sync.Mutex
	entries map[int]parkedPlan
	ttl     time.Duration
}

type parkedPlan struct {
	hash    string
	result  Result
	readyAt time.Time
}

func newParked(ttl time.Duration) *parked {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &parked{entries: map[int]parkedPlan{}, ttl: ttl}
}

// put stores p for userID and drops entries nobody polled for.
func (pk *parked) put(userID int, p parkedPlan) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	now := time.Now()
	for id, e := range pk.entries {
		if now.Sub(e.readyAt) > pk.ttl {
			delete(pk.entries, id)
		}
	}
	pk.entries[userID] = p
}

// take returns the plan for userID and hash. ready is false while the
// minimum wait is still running; the plan is removed only when ready or
// when force is set. A plan for another hash is discarded.
func (pk *parked) take(userID int, hash string, force bool) (res Result, found, ready bool) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	p, ok := pk.entries[userID]
	if !ok {
		return Result{}, false, false
	}
	if p.hash != hash || time.Since(p.readyAt) > pk.ttl {
		delete(pk.entries, userID)
		return Result{}, false, false
	}
	if !force && time.Now().Before(p.readyAt) {
		return Result{}, true, false
	}
	delete(pk.entries, userID)
	return p.result, true, true
}

func (pk *parked) drop(userID int) {
	pk.mu.Lock()
	delete(pk.entries, userID)
	pk.mu.Unlock()
}

func (pk *parked) len() int {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	return len(pk.entries)
}
