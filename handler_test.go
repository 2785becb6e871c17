package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/nutrition"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store/memory"
)

const testToken = "test-token"

const geminiPlan = `A balanced plan built around your targets.

SUMMARY:
{"kcal_target": 1700, "protein_g": 140}

MEALS:
{"Monday": {"breakfast": "Oats", "lunch": "Chicken salad", "dinner": "Salmon with rice"}}

HYDRATION:
{"liters": 2.5}`

type testEnv struct {
	router  *gin.Engine
	db      *memory.DB
	service *advice.Service
	calls   *atomic.Int32
	// setMock sets the status and body the mock Gemini server answers with.
	setMock func(int, string)
}

// setupTest builds the full router on memory stores with a mock Gemini server.
// User 1 has a complete profile and can authenticate with testToken.
func setupTest(t *testing.T) testEnv {
	t.Helper()
	var status atomic.Int32
	var body atomic.Value
	status.Store(http.StatusOK)
	body.Store(geminiResponse(geminiPlan))
	calls := &atomic.Int32{}

	mockGemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		fmt.Fprint(w, body.Load().(string))
	}))
	t.Cleanup(mockGemini.Close)

	db := memory.New()
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	u, _ := db.CreateUser(ctx, "ana", "ana@example.com", string(hash), testToken)
	if err := db.PutProfile(ctx, completeProfile(u.ID)); err != nil {
		t.Fatal(err)
	}

	cfg := advice.DefaultConfig()
	cfg.AlternateModels = nil
	cfg.FlashTimeout, cfg.LongTimeout, cfg.ShortTimeout = 2*time.Second, 2*time.Second, 2*time.Second
	cfg.MinFallbackWait = 0
	cfg.RetryAttempts = 0

	svc := advice.NewService(advice.Deps{
		Profiles:  db,
		Foods:     db,
		Cache:     db,
		Generator: llm.New("test-key", mockGemini.URL, nil),
		Config:    cfg,
		Log:       logger.Nop(),
	})
	t.Cleanup(svc.Close)

	gin.SetMode(gin.TestMode)
	h := &Handler{users: db, profiles: db, advice: svc, log: logger.Nop()}
	router := gin.New()
	h.registerRoutes(router)

	return testEnv{
		router:  router,
		db:      db,
		service: svc,
		calls:   calls,
		setMock: func(s int, b string) {
			status.Store(int32(s))
			body.Store(b)
		},
	}
}

func ptr[T any](v T) *T { return &v }

func completeProfile(userID int) nutrition.Profile {
	dob := time.Now().AddDate(-30, 0, -10)
	return nutrition.Profile{
		UserID:        userID,
		Sex:           ptr("female"),
		DateOfBirth:   &nutrition.DateOnly{Time: time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)},
		HeightCM:      ptr(165.0),
		WeightKG:      ptr(68.0),
		Goal:          ptr(nutrition.GoalLoseFat),
		ActivityLevel: ptr("light"),
		ChangeSpeed:   ptr("moderate"),
	}
}

// geminiResponse wraps text in the generateContent response shape.
func geminiResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
	})
	return string(b)
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

/* ─── Auth ────────────────────────────────────────────────────────────── */

func TestLogin(t *testing.T) {
	env := setupTest(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"username":"ana","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"ana","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"bob","password":"secret"}`, http.StatusUnauthorized},
		{"bad body", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env.router, "POST", "/api/login", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusOK && !strings.Contains(w.Body.String(), testToken) {
				t.Errorf("token missing from %s", w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_RejectsBadToken(t *testing.T) {
	env := setupTest(t)
	for _, header := range []string{"", "Bearer wrong", "Token " + testToken} {
		req := httptest.NewRequest("GET", "/api/profile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

/* ─── Advice ──────────────────────────────────────────────────────────── */

func TestGetAdvice_Success(t *testing.T) {
	env := setupTest(t)

	w := doRequest(env.router, "GET", "/api/advice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res advice.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if res.Fallback || res.Cached || res.State != advice.StateFlashPrimary {
		t.Errorf("fallback %v cached %v state %s", res.Fallback, res.Cached, res.State)
	}
	if len(res.Weekly) != 7 || len(res.Meals.Items) != 3 {
		t.Errorf("weekly %d days, template %d meals", len(res.Weekly), len(res.Meals.Items))
	}
	if res.Hydration.Liters != 2.5 || len(res.Beverages.Items) == 0 {
		t.Errorf("hydration %v beverages %v", res.Hydration.Liters, res.Beverages.Items)
	}

	w = doRequest(env.router, "GET", "/api/advice", "")
	if !strings.Contains(w.Body.String(), `"cached":true`) {
		t.Errorf("second request not served from cache: %s", w.Body.String())
	}
	if env.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", env.calls.Load())
	}
}

func TestGetAdvice_QuotaFallsBackImmediately(t *testing.T) {
	env := setupTest(t)
	env.setMock(http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"You exceeded your current quota","status":"RESOURCE_EXHAUSTED"}}`)

	w := doRequest(env.router, "POST", "/api/advice", `{"minFallbackMs": 60000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res advice.Result
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Fallback || res.State != advice.StateLocalFallback || res.Summary.KcalTarget <= 0 {
		t.Errorf("result = %+v", res)
	}
	if env.db.CacheLen() != 0 {
		t.Error("fallback was cached")
	}
}

func TestGetAdvice_MissingProfile(t *testing.T) {
	env := setupTest(t)
	p := completeProfile(1)
	p.Goal = nil
	env.db.PutProfile(context.Background(), p)

	w := doRequest(env.router, "GET", "/api/advice", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "missing_profile" || body["step"] != nutrition.StepGoal {
		t.Errorf("body = %v", body)
	}
}

func TestGetAdvice_PrefetchAndPoll(t *testing.T) {
	env := setupTest(t)

	w := doRequest(env.router, "GET", "/api/advice?prefetch=1", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") != "2" || !strings.Contains(w.Body.String(), `"started":true`) {
		t.Errorf("kickoff = %s (Retry-After %q)", w.Body.String(), w.Header().Get("Retry-After"))
	}

	env.service.Wait()
	w = doRequest(env.router, "GET", "/api/advice?poll=1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cached":true`) {
		t.Errorf("poll = %d %s", w.Code, w.Body.String())
	}
}

func TestGetAdvice_PendingWhileRunning(t *testing.T) {
	env := setupTest(t)
	h, ok := env.service.Registry().TryAcquire(1)
	if !ok {
		t.Fatal("acquire failed")
	}
	defer env.service.Registry().Release(h)

	w := doRequest(env.router, "GET", "/api/advice?poll=3", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var body acceptedResponse
	json.Unmarshal(w.Body.Bytes(), &body)
	if !body.Pending || body.RetryAfterMs != 16000 || w.Header().Get("Retry-After") != "16" {
		t.Errorf("pending = %+v (Retry-After %q)", body, w.Header().Get("Retry-After"))
	}

	w = doRequest(env.router, "GET", "/api/advice?minFallbackMs=0", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"fallback":true`) {
		t.Errorf("no-wait while busy = %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteAdviceCache(t *testing.T) {
	env := setupTest(t)
	doRequest(env.router, "GET", "/api/advice", "")
	if env.db.CacheLen() != 1 {
		t.Fatal("nothing cached")
	}
	w := doRequest(env.router, "DELETE", "/api/advice/cache", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if env.db.CacheLen() != 0 {
		t.Error("cache entry survived")
	}
}

func TestParseAdviceFlags(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name  string
		url   string
		body  string
		check func(t *testing.T, f advice.Flags, poll int)
	}{
		{"mode long", "/?mode=long&poll=2", "", func(t *testing.T, f advice.Flags, poll int) {
			if f.Mode != "long" || poll != 2 || !advice.DefaultConfig().Resolve(f).ForceLong {
				t.Errorf("flags %+v poll %d", f, poll)
			}
		}},
		{"numeric body flags", "/", `{"prefetch":1,"invalidate":1,"ensureFull":0,"ai_strict":"true"}`, func(t *testing.T, f advice.Flags, _ int) {
			if !f.Prefetch || !f.Invalidate || f.EnsureFull || !f.Strict {
				t.Errorf("flags %+v", f)
			}
		}},
		{"mode long in body", "/", `{"mode":"long"}`, func(t *testing.T, f advice.Flags, _ int) {
			if !advice.DefaultConfig().Resolve(f).ForceLong {
				t.Errorf("mode long in body not honored: %+v", f)
			}
		}},
		{"query wins over body", "/?prefetch=0&minFallbackMs=0", `{"prefetch":true,"ai_strict":true}`, func(t *testing.T, f advice.Flags, _ int) {
			if f.Prefetch || !f.Strict || f.MinFallbackMs == nil || *f.MinFallbackMs != 0 {
				t.Errorf("flags %+v", f)
			}
		}},
		{"bare flag", "/?invalidate&ensureFull=true&poll=-4", "", func(t *testing.T, f advice.Flags, poll int) {
			if !f.Invalidate || !f.EnsureFull || poll != 0 {
				t.Errorf("flags %+v poll %d", f, poll)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			if tt.body == "" {
				c.Request = httptest.NewRequest("GET", tt.url, nil)
			} else {
				c.Request = httptest.NewRequest("POST", tt.url, strings.NewReader(tt.body))
				c.Request.Header.Set("Content-Type", "application/json")
			}
			f, poll, err := parseAdviceFlags(c)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, f, poll)
		})
	}
}

func TestGetAdvice_NumericPrefetchFlag(t *testing.T) {
	env := setupTest(t)
	w := doRequest(env.router, "POST", "/api/advice", `{"prefetch":1}`)
	if w.Code != http.StatusAccepted && w.Code != http.StatusOK {
		t.Fatalf("expected 202 or 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(env.router, "POST", "/api/advice", `{"prefetch":7}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an out-of-range flag, got %d", w.Code)
	}
}

/* ─── Profile ─────────────────────────────────────────────────────────── */

func TestGetProfile(t *testing.T) {
	env := setupTest(t)
	w := doRequest(env.router, "GET", "/api/profile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body profileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.MissingStep != "" || body.Targets == nil || body.Targets.KcalTarget <= 0 || body.Hash == "" {
		t.Errorf("profile = %+v", body)
	}
}

func TestPatchProfile_Validation(t *testing.T) {
	env := setupTest(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", `{}`, http.StatusBadRequest},
		{"bad goal", `{"goal":"get_shredded"}`, http.StatusBadRequest},
		{"bad activity", `{"activity_level":"couch"}`, http.StatusBadRequest},
		{"bad meal type", `{"meal_types":["breakfast","elevenses"]}`, http.StatusBadRequest},
		{"bad weight", `{"weight_kg":5}`, http.StatusBadRequest},
		{"valid", `{"meal_types":["breakfast","snack","dinner"],"country":"Chile"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env.router, "PATCH", "/api/profile", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestPatchProfile_InvalidatesAdvice(t *testing.T) {
	env := setupTest(t)
	doRequest(env.router, "GET", "/api/advice", "")
	if env.db.CacheLen() != 1 {
		t.Fatal("nothing cached")
	}

	w := doRequest(env.router, "PATCH", "/api/profile", `{"display_name":"Ana"}`)
	if w.Code != http.StatusOK || env.db.CacheLen() != 1 {
		t.Fatalf("cosmetic edit: %d, cache len %d", w.Code, env.db.CacheLen())
	}

	w = doRequest(env.router, "PATCH", "/api/profile", `{"weight_kg":66.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.db.CacheLen() != 0 {
		t.Error("weight change kept cached advice")
	}
}
