// Package httpx contains the HTTP delivery layer for deckgen. It decodes
// generate requests, hands them to the orchestrator, and translates the
// result or error into the JSON envelope callers depend on.
package httpx

import (
	"context"
	"net/http"

	"github.com/haukened/deckgen/internal/domain"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	Handle(ctx context.Context, req domain.Request) (domain.Result, error)
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service   ServicePort
	MaxBody   int64                       // request body cap, 0 disables
	Readiness func(context.Context) error // optional readiness check
	Metrics   http.Handler                // optional /metrics endpoint
}

// New returns a configured Handler.
// svc: application service port implementation.
// maxBody: maximum allowed request body size (0 disables the cap).
// readiness: optional check for /readyz (nil => always ready).
func New(svc ServicePort, maxBody int64, readiness func(context.Context) error) *Handler {
	return &Handler{Service: svc, MaxBody: maxBody, Readiness: readiness}
}

// Router constructs and returns an http.Handler with all routes mounted,
// correlation ids assigned and security headers applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", h.handleGenerate)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReady)
	if h.Metrics != nil {
		mux.Handle("/metrics", h.Metrics)
	}
	return CorrelationIDMiddleware(h.secureHeaders(mux))
}
