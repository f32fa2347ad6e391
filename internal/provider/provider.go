// Package provider contains the upstream clients for text and image
// generation. Each client performs exactly one request with one key and
// classifies the response into a domain.Outcome; retries and key rotation
// are the orchestrator's job.
package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/haukened/deckgen/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// Client issues a single generation attempt against one upstream using one key.
type Client interface {
	// Name identifies the upstream in logs and metrics.
	Name() string
	// Generate never returns an error; every failure is folded into the Outcome.
	Generate(ctx context.Context, key string, req domain.Request) domain.Outcome
}

// Checker is implemented by clients that need configuration beyond a key.
// Check runs before any network attempt.
type Checker interface {
	Check() error
}

// ClassifyStatus maps an upstream HTTP status to an outcome kind.
// 429 and 503 are the only statuses worth retrying with the same key.
func ClassifyStatus(status int) domain.OutcomeKind {
	switch {
	case status >= 200 && status < 300:
		return domain.OutcomeSuccess
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return domain.OutcomeRetryable
	default:
		return domain.OutcomePermanent
	}
}

// failure turns a non-2xx status into the matching failure outcome.
func failure(status int, reason string) domain.Outcome {
	if ClassifyStatus(status) == domain.OutcomeRetryable {
		return domain.Retryable(status, reason)
	}
	return domain.Permanent(status, reason)
}

// fromOpenAIError classifies errors returned by the go-openai client. API and
// request errors carry the upstream status; anything else (dial, TLS, decode,
// context) had no usable response and is permanent for this attempt.
func fromOpenAIError(err error) domain.Outcome {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return failure(apiErr.HTTPStatusCode, truncate(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return failure(reqErr.HTTPStatusCode, truncate(reqErr.Error()))
	}
	return domain.Permanent(0, truncate(err.Error()))
}

// newOpenAIClient builds a go-openai client bound to one key.
func newOpenAIClient(key, baseURL string, hc *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc
	}
	return openai.NewClientWithConfig(cfg)
}

const maxReasonLen = 200

// truncate bounds upstream messages before they reach the logs.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxReasonLen {
		return s[:maxReasonLen] + "..."
	}
	return s
}
