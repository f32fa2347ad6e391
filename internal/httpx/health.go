package httpx

import (
	"log/slog"
	"net/http"
)

// handleHealth reports liveness. It never touches pools or storage.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady answers 503 while the readiness check fails, e.g. when no
// credential pool holds a key. The reason is logged, never returned.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Readiness != nil {
		if err := h.Readiness(ctx); err != nil {
			cid, _ := GetCorrelationID(ctx)
			slog.Warn("not ready", "domain", "health", "cid", cid, "err", err)
			h.writeError(ctx, w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
