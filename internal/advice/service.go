// Package advice orchestrates plan generation: single-flight per user, a
// ladder of model tiers with independent deadlines, a local fallback behind
// a minimum-wait gate, and a per-user result cache keyed by profile hash.
package advice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store"
)

var (
	// ErrMissingProfile means onboarding data the plan depends on is absent.
	ErrMissingProfile = errors.New("advice: profile incomplete")
	// ErrIncomplete means no result could be produced this time; retrying
	// later may succeed.
	ErrIncomplete = errors.New("advice: generation incomplete")
)

// MissingProfileError names the onboarding step the user must complete.
type MissingProfileError struct {
	Step string
}

func (e *MissingProfileError) Error() string {
	return fmt.Sprintf("advice: profile incomplete (step %s)", e.Step)
}

func (e *MissingProfileError) Unwrap() error { return ErrMissingProfile }

// ProfileStore reads the user's profile.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID int) (nutrition.Profile, error)
}

// FoodStore reads the user's saved foods.
type FoodStore interface {
	SavedFoods(ctx context.Context, userID int) ([]nutrition.SavedFood, error)
}

// Status tells the front door how to answer.
type Status int

const (
	StatusReady   Status = iota // Result is set
	StatusStarted               // background generation started
	StatusPending               // another generation for this user is running
)

// Response is the outcome of Service.Get.
type Response struct {
	Status Status
	Result *Result
}

// Deps wires a Service.
type Deps struct {
	Profiles  ProfileStore
	Foods     FoodStore
	Cache     CacheStore
	Generator llm.Generator
	Config    Config
	Log       *logger.Logger
	Calc      *nutrition.Calculator
}

type Service struct {
	profiles ProfileStore
	foods    FoodStore
	cache    CacheStore
	cfg      Config
	log      *logger.Logger
	calc     *nutrition.Calculator

	registry *Registry
	ladder   *Ladder
	asm      *Assembler
	parked   *parked

	// base scopes background generations; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Calc == nil {
		d.Calc = nutrition.NewCalculator()
	}
	if d.Calc.Now == nil {
		d.Calc.Now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		profiles: d.Profiles,
		foods:    d.Foods,
		cache:    d.Cache,
		cfg:      d.Config,
		log:      d.Log,
		calc:     d.Calc,
		registry: NewRegistry(d.Config.Watchdog, d.Log),
		ladder:   NewLadder(d.Generator, d.Config, d.Log),
		asm:      NewAssembler(d.Calc),
		parked:   newParked(d.Config.Watchdog),
		base:     base,
		cancel:   cancel,
	}
}

// Config returns the defaults requests are resolved against.
func (s *Service) Config() Config { return s.cfg }

// Registry exposes the single-flight registry, mainly for diagnostics.
func (s *Service) Registry() *Registry { return s.registry }

// Close cancels background generations and waits for them to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background generation has finished.
func (s *Service) Wait() { s.wg.Wait() }

/* ─── Front door ─────────────────────────────────────────────────────── */

// Get serves a cached plan, starts or joins a generation, or runs one
// synchronously, depending on o.
func (s *Service) Get(ctx context.Context, userID int, o Options) (Response, error) {
	start := time.Now()
	log := s.log.With("user_id", userID)

	if o.Invalidate {
		if err := s.Invalidate(ctx, userID); err != nil {
			log.Warn("advice cache invalidate failed", "error", err)
		}
	}

	in, entry, err := s.load(ctx, userID, !o.Invalidate)
	if err != nil {
		return Response{}, err
	}
	if step := in.Profile.MissingStep(s.calc.Now()); step != "" {
		return Response{}, &MissingProfileError{Step: step}
	}
	hash := nutrition.Hash(in.Profile)

	if entry != nil {
		reason := LegacyReason(entry.Result)
		if entry.ProfileHash != hash {
			reason = "profile changed"
		}
		if reason == "" {
			log.Info("advice cache hit", "state", string(entry.Result.State))
			res := entry.Result
			res.Cached = true
			return Response{Status: StatusReady, Result: &res}, nil
		}
		log.Info("advice cache miss", "reason", reason)
	}

	if res, found, ready := s.parked.take(userID, hash, o.NoWait); found {
		if !ready {
			return Response{Status: StatusPending}, nil
		}
		log.Info("advice serving local plan from background generation")
		return Response{Status: StatusReady, Result: &res}, nil
	}

	h, ok := s.registry.TryAcquire(userID)
	if !ok {
		if o.NoWait {
			log.Info("advice generation busy, serving local plan")
			res, err := s.asm.Local(in)
			if err != nil {
				return Response{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
			}
			res.TookMs = time.Since(start).Milliseconds()
			return Response{Status: StatusReady, Result: &res}, nil
		}
		return Response{Status: StatusPending}, nil
	}

	if o.Prefetch {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.generate(s.base, h, in, hash, o, start, true); err != nil {
				log.Warn("advice background generation failed", "error", err)
			}
		}()
		return Response{Status: StatusStarted}, nil
	}

	// A client that disconnects does not abort the generation; its result
	// still lands in the cache for the next poll. Close still stops it.
	gctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()
	defer context.AfterFunc(s.base, stop)()
	res, err := s.generate(gctx, h, in, hash, o, start, false)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: StatusReady, Result: &res}, nil
}

// Invalidate drops the cached plan for userID.
func (s *Service) Invalidate(ctx context.Context, userID int) error {
	s.parked.drop(userID)
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, userID)
}

// ProfileUpdated drops the cached plan when an edit changed the hash.
func (s *Service) ProfileUpdated(ctx context.Context, before, after nutrition.Profile) error {
	if nutrition.Hash(before) == nutrition.Hash(after) {
		return nil
	}
	s.log.Info("advice profile hash changed, invalidating", "user_id", after.UserID)
	return s.Invalidate(ctx, after.UserID)
}

// load fetches profile, saved foods and (optionally) the cache entry
// concurrently. Only the profile is required; the others degrade to empty.
func (s *Service) load(ctx context.Context, userID int, withCache bool) (Inputs, *CacheEntry, error) {
	var (
		in    Inputs
		entry *CacheEntry
	)
	in.Profile.UserID = userID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.GetProfile(gctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return &MissingProfileError{Step: nutrition.StepBodyMetrics}
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		in.Profile = p
		return nil
	})
	if s.foods != nil {
		g.Go(func() error {
			foods, err := s.foods.SavedFoods(gctx, userID)
			if err != nil {
				s.log.Warn("advice saved foods unavailable", "user_id", userID, "error", err)
				return nil
			}
			in.SavedFoods = foods
			return nil
		})
	}
	if withCache && s.cache != nil {
		g.Go(func() error {
			e, err := s.cache.Get(gctx, userID)
			if err != nil {
				// A corrupt entry is a miss, never a failed request.
				s.log.Warn("advice cache read failed", "user_id", userID, "error", err)
				return nil
			}
			entry = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Inputs{}, nil, err
	}
	return in, entry, nil
}

/* ─── Generation ─────────────────────────────────────────────────────── */

// generate runs the ladder under handle h and releases it when done.
// Non-fallback results are written to the cache. A background run does not
// sit out the minimum wait; its local plan is parked for the next poll with
// the time it may be served.
func (s *Service) generate(ctx context.Context, h *Handle, in Inputs, hash string, o Options, start time.Time, background bool) (Result, error) {
	defer s.registry.Release(h)
	log := s.log.With("user_id", in.Profile.UserID, "handle", h.ID)

	local, err := s.calc.Compute(in.Profile)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	prompts := BuildPrompts(in.Profile, local, in.SavedFoods, s.calc.Now())
	out := s.ladder.Run(ctx, prompts, o)

	var res Result
	if out.State != StateLocalFallback {
		res, err = s.asm.FromText(out.Text, in)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
		}
		res.Model = out.Model
		res.State = out.State
	} else {
		wait := o.MinFallbackWait
		if o.NoWait || out.SkipWait {
			wait = 0
		}
		log.Info("advice falling back to local plan",
			"state", string(StateLocalFallback),
			"last_error", out.LastClass.String(),
			"wait_ms", max(0, wait-time.Since(start)).Milliseconds(),
			"background", background,
		)
		if !background {
			if err := waitMinimum(ctx, start, wait); err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
			}
		}
		res, err = s.asm.Local(in)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
		}
		if background {
			res.Attempts = out.Attempts
			res.TookMs = time.Since(start).Milliseconds()
			s.parked.put(in.Profile.UserID, parkedPlan{hash: hash, result: res, readyAt: start.Add(wait)})
			return res, nil
		}
	}
	res.Attempts = out.Attempts
	res.TookMs = time.Since(start).Milliseconds()

	log.Info("advice generation finished",
		"state", string(res.State),
		"model", res.Model,
		"fallback", res.Fallback,
		"elapsed_ms", res.TookMs,
	)

	if !res.Fallback && s.cache != nil {
		entry := CacheEntry{UserID: in.Profile.UserID, ProfileHash: hash, Result: res, CreatedAt: time.Now()}
		if err := s.cache.Put(ctx, entry); err != nil {
			log.Error("advice cache write failed", "error", err)
		}
	}
	return res, nil
}

// waitMinimum returns once wait has elapsed since start, or early with the
// context's error. Other users' generations are never blocked by it.
func waitMinimum(ctx context.Context, start time.Time, wait time.Duration) error {
	remaining := wait - time.Since(start)
	if remaining <= 0 {
		return nil
	}
	return sleepCtx(ctx, remaining)
}
