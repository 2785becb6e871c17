// Package llm talks to the Gemini generateContent REST API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lg/nutrition-advice-api/internal/platform/httpx"
	"lg/nutrition-advice-api/internal/platform/logger"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Request is one generation call. Model is chosen per call so the advice
// ladder can move between tiers with a single client.
type Request struct {
	Model           string
	System          string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// Response carries the concatenated candidate text.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	TotalTokens  int
}

// Generator is what the advice ladder depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Client calls Gemini with raw net/http. It never retries; retry policy
// belongs to the caller, which knows the error class and remaining budget.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

var _ Generator = (*Client)(nil)

// New returns a client. An empty baseURL means the public endpoint.
func New(apiKey, baseURL string, log *logger.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-call deadlines come from the context; this only guards
		// against a connection that never completes.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        log,
	}
}

/* ─── Wire types ─────────────────────────────────────────────────────── */

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

/* ─── Generate ───────────────────────────────────────────────────────── */

// Generate sends one generateContent request and returns the text of the
// first candidate.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &ProviderError{StatusCode: http.StatusUnauthorized, Status: "UNAUTHENTICATED", Message: "GEMINI_API_KEY not set", Model: req.Model}
	}
	if req.Model == "" {
		return Response{}, errors.New("llm: model is required")
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Surface the context error itself so callers can tell a tier
		// deadline from a network failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := &ProviderError{StatusCode: resp.StatusCode, Model: req.Model, RetryAfter: httpx.RetryAfter(resp.Header)}
		var env errorEnvelope
		if json.Unmarshal(respBytes, &env) == nil && env.Error.Message != "" {
			perr.Status = env.Error.Status
			perr.Message = env.Error.Message
		} else {
			perr.Message = truncate(string(respBytes), 500)
		}
		c.log.Warn("gemini request failed",
			"model", req.Model,
			"status", resp.StatusCode,
			"provider_status", perr.Status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Response{}, perr
	}

	var result generateResponse
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return Response{}, fmt.Errorf("%w: unmarshal response: %v", ErrMalformed, err)
	}
	if result.PromptFeedback.BlockReason != "" {
		return Response{}, fmt.Errorf("%w: prompt blocked: %s", ErrMalformed, result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return Response{}, fmt.Errorf("%w: no candidates in response", ErrMalformed)
	}

	cand := result.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Response{}, fmt.Errorf("%w: empty candidate (finish reason %s)", ErrMalformed, cand.FinishReason)
	}

	model := req.Model
	if result.ModelVersion != "" {
		model = result.ModelVersion
	}
	c.log.Debug("gemini request ok",
		"model", model,
		"finish_reason", cand.FinishReason,
		"tokens", result.UsageMetadata.TotalTokenCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Response{
		Text:         text,
		Model:        model,
		FinishReason: cand.FinishReason,
		TotalTokens:  result.UsageMetadata.TotalTokenCount,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
