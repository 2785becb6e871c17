package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/platform/apierr"
)

// getAdvice serves the user's plan.
// GET|POST /api/advice. Flags come from the JSON body (POST) and the query
// string; query values win. With prefetch=1 the generation runs in the
// background and the client polls with poll=<n>.
func (h *Handler) getAdvice(c *gin.Context) {
	userID := c.GetInt("user_id")

	flags, poll, err := parseAdviceFlags(c)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	opts := h.advice.Config().Resolve(flags)

	resp, err := h.advice.Get(c.Request.Context(), userID, opts)
	if err != nil {
		e := adviceAPIError(err)
		if e.Status >= http.StatusInternalServerError {
			h.log.Error("advice request failed", "user_id", userID, "error", err)
		}
		writeAPIError(c, e)
		return
	}

	switch resp.Status {
	case advice.StatusStarted:
		accepted(c, poll, acceptedResponse{Started: true})
	case advice.StatusPending:
		accepted(c, poll, acceptedResponse{Pending: true})
	default:
		c.JSON(http.StatusOK, resp.Result)
	}
}

// deleteAdviceCache drops the cached plan without generating a new one.
// DELETE /api/advice/cache.
func (h *Handler) deleteAdviceCache(c *gin.Context) {
	userID := c.GetInt("user_id")
	if err := h.advice.Invalidate(c, userID); err != nil {
		h.log.Error("advice cache delete failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to delete cached advice")
		return
	}
	c.Status(http.StatusNoContent)
}

// accepted writes a 202 with the poll backoff hint in both the Retry-After
// header (seconds) and the body (milliseconds).
func accepted(c *gin.Context, poll int, body acceptedResponse) {
	delay := advice.PollDelay(poll)
	body.RetryAfterMs = delay.Milliseconds()
	c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())))
	c.JSON(http.StatusAccepted, body)
}

// adviceAPIError maps service errors to HTTP responses.
func adviceAPIError(err error) *apierr.Error {
	var missing *advice.MissingProfileError
	switch {
	case errors.As(err, &missing):
		return apierr.New(http.StatusUnprocessableEntity, "missing_profile", err).With("step", missing.Step)
	case errors.Is(err, advice.ErrIncomplete):
		return apierr.New(http.StatusServiceUnavailable, "generation_incomplete", err).With("retry", true)
	default:
		return apierr.New(http.StatusInternalServerError, "internal", errors.New("failed to generate advice"))
	}
}

/* ─── Flag parsing ────────────────────────────────────────────────────── */

// parseAdviceFlags merges the optional JSON body with query parameters and
// returns the poll counter.
func parseAdviceFlags(c *gin.Context) (advice.Flags, int, error) {
	var f advice.Flags
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&f); err != nil {
			return f, 0, err
		}
	}

	boolQuery(c, "invalidate", &f.Invalidate)
	boolQuery(c, "forceLong", &f.ForceLong)
	boolQuery(c, "ensureFull", &f.EnsureFull)
	boolQuery(c, "ai_strict", &f.Strict)
	boolQuery(c, "prefetch", &f.Prefetch)
	if v := c.Query("mode"); v != "" {
		f.Mode = v
	}

	intQuery(c, "minFallbackMs", &f.MinFallbackMs)
	intQuery(c, "flashTimeoutMs", &f.FlashTimeoutMs)
	intQuery(c, "longTimeoutMs", &f.LongTimeoutMs)
	intQuery(c, "shortTimeoutMs", &f.ShortTimeoutMs)
	intQuery(c, "maxOutputTokens", &f.MaxOutputTokens)
	if v := c.Query("flashModel"); v != "" {
		f.FlashModel = v
	}
	if v := c.Query("longModel"); v != "" {
		f.LongModel = v
	}

	poll, _ := strconv.Atoi(c.Query("poll"))
	return f, max(poll, 0), nil
}

func boolQuery(c *gin.Context, name string, dst *advice.Flag) {
	v, ok := c.GetQuery(name)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func intQuery(c *gin.Context, name string, dst **int) {
	v, ok := c.GetQuery(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = &n
}
