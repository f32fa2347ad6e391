package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haukened/deckgen/internal/domain"
)

// DefaultHuggingFaceURL is the SDXL inference endpoint.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

// DefaultQualitySuffix is appended to every image prompt.
const DefaultQualitySuffix = ", high quality, detailed, professional"

const maxImageBytes = 20 << 20

// HuggingFaceConfig configures the primary image client.
type HuggingFaceConfig struct {
	Name          string // defaults to "huggingface"
	URL           string
	QualitySuffix string
	Width         int
	Height        int
	HTTPClient    *http.Client
}

// HuggingFace calls a text-to-image inference endpoint that answers with raw
// image bytes.
type HuggingFace struct {
	cfg HuggingFaceConfig
}

var _ Client = (*HuggingFace)(nil)

// NewHuggingFace returns a HuggingFace client with defaults filled in.
func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.Name == "" {
		cfg.Name = "huggingface"
	}
	if cfg.URL == "" {
		cfg.URL = DefaultHuggingFaceURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HuggingFace{cfg: cfg}
}

// Name implements Client.
func (h *HuggingFace) Name() string { return h.cfg.Name }

type hfParameters struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// Generate posts the prompt and expects an image body. Any other answer is a
// permanent failure for this key; image keys are never retried.
func (h *HuggingFace) Generate(ctx context.Context, key string, req domain.Request) domain.Outcome {
	payload, err := json.Marshal(hfRequest{
		Inputs: req.Prompt + h.cfg.QualitySuffix,
		Parameters: hfParameters{
			NegativePrompt: req.NegativePrompt,
			Width:          h.cfg.Width,
			Height:         h.cfg.Height,
		},
	})
	if err != nil {
		return domain.Permanent(0, err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.Permanent(0, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")

	resp, err := h.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.Permanent(0, truncate(err.Error()))
	}
	defer resp.Body.Close()

	// One byte past the limit tells an oversized image from one that fits.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return domain.Permanent(resp.StatusCode, fmt.Sprintf("read body: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Permanent(resp.StatusCode, upstreamMessage(body))
	}
	if len(body) == 0 {
		return domain.Permanent(resp.StatusCode, domain.ErrMalformedUpstream.Error()+": empty body")
	}
	if len(body) > maxImageBytes {
		return domain.Permanent(resp.StatusCode, fmt.Sprintf("%s: image exceeds %d bytes", domain.ErrMalformedUpstream, maxImageBytes))
	}
	mt, ok := imageMIME(resp.Header.Get("Content-Type"), body)
	if !ok {
		return domain.Permanent(resp.StatusCode, domain.ErrMalformedUpstream.Error()+": not an image ("+mt+")")
	}
	return domain.Success(DataURL(mt, body))
}

// upstreamMessage pulls a human-readable message out of a JSON error body,
// falling back to the raw (truncated) text.
func upstreamMessage(body []byte) string {
	var e struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		switch v := e.Error.(type) {
		case string:
			if v != "" {
				return truncate(v)
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return truncate(m)
			}
		}
		if e.Message != "" {
			return truncate(e.Message)
		}
	}
	return truncate(string(body))
}
