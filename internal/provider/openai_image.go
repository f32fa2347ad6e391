package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/haukened/deckgen/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIImageConfig configures the secondary image client.
type OpenAIImageConfig struct {
	Name       string // defaults to "openai-image"
	BaseURL    string
	Model      string
	Size       string // e.g. "1024x1024"
	HTTPClient *http.Client
}

// OpenAIImage calls an OpenAI-compatible images endpoint and asks for a
// base64 payload so nothing has to be fetched afterwards.
type OpenAIImage struct {
	cfg OpenAIImageConfig
}

var _ Client = (*OpenAIImage)(nil)

// NewOpenAIImage returns an OpenAIImage client.
func NewOpenAIImage(cfg OpenAIImageConfig) *OpenAIImage {
	if cfg.Name == "" {
		cfg.Name = "openai-image"
	}
	if cfg.Size == "" {
		cfg.Size = openai.CreateImageSize1024x1024
	}
	return &OpenAIImage{cfg: cfg}
}

// Name implements Client.
func (o *OpenAIImage) Name() string { return o.cfg.Name }

// Generate requests a single image. The images API has no negative prompt,
// so one is appended to the prompt as plain guidance.
func (o *OpenAIImage) Generate(ctx context.Context, key string, req domain.Request) domain.Outcome {
	prompt := req.Prompt
	if np := strings.TrimSpace(req.NegativePrompt); np != "" {
		prompt += ". Avoid: " + np
	}
	client := newOpenAIClient(key, o.cfg.BaseURL, o.cfg.HTTPClient)
	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.cfg.Model,
		Size:           o.cfg.Size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		// Image attempts never retry the same key.
		out := fromOpenAIError(err)
		out.Kind = domain.OutcomePermanent
		return out
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return domain.Permanent(http.StatusOK, domain.ErrMalformedUpstream.Error()+": no image data")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return domain.Permanent(http.StatusOK, domain.ErrMalformedUpstream.Error()+": bad base64")
	}
	mt, ok := imageMIME("", raw)
	if !ok {
		return domain.Permanent(http.StatusOK, domain.ErrMalformedUpstream.Error()+": not an image ("+mt+")")
	}
	return domain.Success(DataURL(mt, raw))
}
