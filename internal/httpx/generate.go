package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/haukened/deckgen/internal/domain"
)

// generateBody is the inbound JSON payload. The action travels in the query
// string, not here.
type generateBody struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Token          string `json:"token"`
}

type generateResponse struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// handleGenerate implements POST /api/generate?action=deck|image.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.URL.Path != "/api/generate" {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}

	body := r.Body
	if h.MaxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}
	defer body.Close()

	var in generateBody
	if err := decodeJSON(body, &in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(ctx, w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	action, err := domain.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	res, err := h.Service.Handle(ctx, domain.Request{
		Action:         action,
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		Token:          in.Token,
	})
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Text: res.Text, Image: res.Image})
}

var errTrailingData = errors.New("unexpected data after JSON value")

// decodeJSON reads exactly one JSON value from r. Anything but whitespace
// after it is an error.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == io.EOF:
		return nil
	case err == nil:
		return errTrailingData
	default:
		return err
	}
}
