package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/haukened/deckgen/internal/domain"
)

// writeJSON writes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
	if cid, ok := GetCorrelationID(ctx); ok {
		slog.Debug("wrote error response", "cid", cid, "status", code, "msg", msg)
	}
}

// mapServiceError maps orchestrator errors to HTTP responses. Per-key
// failures never reach here; only validation, configuration and
// exhaustion do.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	switch {
	case errors.Is(err, domain.ErrInvalidAction):
		slog.Info("service error", "cid", cid, "code", "invalid_action")
		h.writeError(ctx, w, http.StatusBadRequest, "invalid action")
	case errors.Is(err, domain.ErrMissingPrompt):
		slog.Info("service error", "cid", cid, "code", "missing_prompt")
		h.writeError(ctx, w, http.StatusBadRequest, "missing prompt")
	case errors.Is(err, domain.ErrConfiguration):
		slog.Error("service error", "cid", cid, "code", "configuration", "err", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "service is not configured for this action")
	case errors.Is(err, domain.ErrAllKeysExhausted):
		slog.Warn("service error", "cid", cid, "code", "exhausted")
		h.writeError(ctx, w, http.StatusInternalServerError, "all API keys failed")
	default:
		// Unexpected: do not echo the raw error to the caller.
		slog.Error("unhandled service error", "cid", cid, "code", "unhandled", "err", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "internal")
	}
}
