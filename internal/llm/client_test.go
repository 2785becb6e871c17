package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// setupGemini starts a mock Gemini server and returns a client pointed at it
// plus a function to set the next response.
func setupGemini(t *testing.T) (*Client, func(int, string), *generateRequest) {
	t.Helper()
	var status int
	var body string
	var last generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	set := func(s int, b string) {
		status, body = s, b
	}
	return New("test-key", srv.URL, nil), set, &last
}

func candidate(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"totalTokenCount": 42},
	})
	return string(b)
}

func TestGenerate_Success(t *testing.T) {
	c, set, last := setupGemini(t)
	set(http.StatusOK, candidate("SUMMARY: {}"))

	resp, err := c.Generate(context.Background(), Request{
		Model: "gemini-2.5-flash", System: "be terse", Prompt: "plan", Temperature: 0.6, MaxOutputTokens: 8192,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "SUMMARY: {}" || resp.Model != "gemini-2.5-flash" || resp.TotalTokens != 42 {
		t.Errorf("resp = %+v", resp)
	}
	if last.GenerationConfig.MaxOutputTokens != 8192 || last.GenerationConfig.Temperature != 0.6 {
		t.Errorf("generation config = %+v", last.GenerationConfig)
	}
	if last.SystemInstruction == nil || last.SystemInstruction.Parts[0].Text != "be terse" {
		t.Errorf("system instruction = %+v", last.SystemInstruction)
	}
}

func TestGenerate_ProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Class
	}{
		{"quota", 429, `{"error":{"code":429,"message":"You exceeded your current quota","status":"RESOURCE_EXHAUSTED"}}`, ClassQuota},
		{"rate limit", 429, `{"error":{"code":429,"message":"Too many requests","status":"RESOURCE_EXHAUSTED"}}`, ClassTransient},
		{"overloaded", 503, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, ClassOverloaded},
		{"permission", 403, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`, ClassPermission},
		{"invalid key", 400, `{"error":{"code":400,"message":"API key not valid. API_KEY_INVALID","status":"INVALID_ARGUMENT"}}`, ClassPermission},
		{"internal", 500, `oops`, ClassTransient},
		{"bad request", 400, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`, ClassOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, set, _ := setupGemini(t)
			set(tc.status, tc.body)
			_, err := c.Generate(context.Background(), Request{Model: "m", Prompt: "p"})
			var perr *ProviderError
			if !errors.As(err, &perr) || perr.StatusCode != tc.status {
				t.Fatalf("err = %v", err)
			}
			if got := Classify(err); got != tc.want {
				t.Errorf("class = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGenerate_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates": []}`,
		"blocked":       `{"promptFeedback": {"blockReason": "SAFETY"}}`,
		"empty text":    candidate("   "),
		"not json":      `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			c, set, _ := setupGemini(t)
			set(http.StatusOK, body)
			_, err := c.Generate(context.Background(), Request{Model: "m", Prompt: "p"})
			if Classify(err) != ClassMalformed {
				t.Errorf("class = %v (%v)", Classify(err), err)
			}
		})
	}
}

func TestGenerate_DeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New("test-key", srv.URL, nil).Generate(ctx, Request{Model: "m", Prompt: "p"})
	if Classify(err) != ClassTimeout {
		t.Errorf("class = %v (%v)", Classify(err), err)
	}
}

func TestGenerate_MissingKey(t *testing.T) {
	_, err := New("", "http://unused", nil).Generate(context.Background(), Request{Model: "m"})
	if Classify(err) != ClassPermission {
		t.Errorf("class = %v", Classify(err))
	}
}

func TestClass_Unrecoverable(t *testing.T) {
	for _, c := range []Class{ClassQuota, ClassPermission} {
		if !c.Unrecoverable() {
			t.Errorf("%v should be unrecoverable", c)
		}
	}
	for _, c := range []Class{ClassTransient, ClassOverloaded, ClassTimeout, ClassMalformed, ClassOther} {
		if c.Unrecoverable() {
			t.Errorf("%v should be recoverable", c)
		}
	}
}
