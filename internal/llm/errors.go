package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"lg/nutrition-advice-api/internal/platform/httpx"
)

// ErrMalformed marks a 200 response that carried no usable text.
var ErrMalformed = errors.New("llm: malformed response")

// ProviderError is a non-200 answer from the provider.
type ProviderError struct {
	StatusCode int
	Status     string // provider status, e.g. RESOURCE_EXHAUSTED
	Message    string
	Model      string
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini %s http %d %s: %s", e.Model, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini %s http %d: %s", e.Model, e.StatusCode, e.Message)
}

func (e *ProviderError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

var _ httpx.HTTPStatusCoder = (*ProviderError)(nil)

// Class groups errors by what the caller should do next.
type Class int

const (
	ClassNone       Class = iota
	ClassTransient        // retry in place with backoff
	ClassOverloaded       // try an alternate model
	ClassQuota            // give up on the provider
	ClassPermission       // give up on the provider
	ClassTimeout          // move to the next tier
	ClassMalformed        // call succeeded without usable output
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassOverloaded:
		return "overloaded"
	case ClassQuota:
		return "quota"
	case ClassPermission:
		return "permission"
	case ClassTimeout:
		return "timeout"
	case ClassMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// Unrecoverable reports whether no retry against the provider can succeed.
func (c Class) Unrecoverable() bool {
	return c == ClassQuota || c == ClassPermission
}

// Classify maps an error from Generate to a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, ErrMalformed) {
		return ClassMalformed
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return classifyProvider(perr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransient
	}
	return ClassOther
}

func classifyProvider(e *ProviderError) Class {
	status := strings.ToUpper(e.Status)
	msg := strings.ToLower(e.Message)

	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden,
		status == "PERMISSION_DENIED", status == "UNAUTHENTICATED",
		strings.Contains(msg, "api_key_invalid"), strings.Contains(msg, "api key not valid"):
		return ClassPermission
	case e.StatusCode == http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") {
			return ClassQuota
		}
		return ClassTransient
	case e.StatusCode == http.StatusServiceUnavailable, status == "UNAVAILABLE",
		strings.Contains(msg, "overloaded"):
		return ClassOverloaded
	case e.StatusCode == http.StatusGatewayTimeout, status == "DEADLINE_EXCEEDED":
		return ClassTimeout
	case httpx.IsRetryableHTTPStatus(e.StatusCode):
		return ClassTransient
	}
	return ClassOther
}
