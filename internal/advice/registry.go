package advice

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lg/nutrition-advice-api/internal/platform/logger"
)

// Handle marks one in-flight generation.
type Handle struct {
	ID      string
	UserID  int
	Started time.Time
	timer   *time.Timer
}

// Registry guarantees at most one in-flight generation per user. A watchdog
// untracks a handle that outlives its bound; the generation itself keeps
// running.
type Registry struct {
	mu       sync.Mutex
	active   map[int]*Handle
	watchdog time.Duration
	log      *logger.Logger
}

func NewRegistry(watchdog time.Duration, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{active: map[int]*Handle{}, watchdog: watchdog, log: log}
}

// TryAcquire registers a handle for userID, or returns false when one is
// already registered.
func (r *Registry) TryAcquire(userID int) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[userID]; busy {
		return nil, false
	}
	h := &Handle{ID: uuid.NewString(), UserID: userID, Started: time.Now()}
	if r.watchdog > 0 {
		h.timer = time.AfterFunc(r.watchdog, func() {
			if r.Release(h) {
				r.log.Warn("advice watchdog evicted generation",
					"user_id", h.UserID,
					"handle", h.ID,
					"elapsed_ms", time.Since(h.Started).Milliseconds(),
				)
			}
		})
	}
	r.active[userID] = h
	r.log.Debug("advice registry acquired", "user_id", userID, "handle", h.ID)
	return h, true
}

// Release removes h if it is still the registered handle for its user. A
// handle evicted by the watchdog never removes its successor.
func (r *Registry) Release(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.active[h.UserID]
	if !ok || cur.ID != h.ID {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	delete(r.active, h.UserID)
	r.log.Debug("advice registry released", "user_id", h.UserID, "handle", h.ID)
	return true
}

// Active reports whether a generation is registered for userID.
func (r *Registry) Active(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[userID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
