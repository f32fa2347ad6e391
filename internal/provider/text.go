package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/haukened/deckgen/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultSystemPrompt frames every deck request.
const DefaultSystemPrompt = "You are a helpful assistant that generates presentation content."

// TextConfig configures the chat-completion client.
type TextConfig struct {
	BaseURL      string // OpenAI-compatible base, e.g. https://routellm.abacus.ai/v1
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	HTTPClient   *http.Client // optional; go-openai default when nil
}

// Text is the chat-completion client used for the deck action.
type Text struct {
	cfg TextConfig
}

var (
	_ Client  = (*Text)(nil)
	_ Checker = (*Text)(nil)
)

// NewText returns a Text client. An empty SystemPrompt uses DefaultSystemPrompt.
func NewText(cfg TextConfig) *Text {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Text{cfg: cfg}
}

// Name implements Client.
func (t *Text) Name() string { return "text" }

// Check reports a missing model id before any key is spent.
func (t *Text) Check() error {
	if strings.TrimSpace(t.cfg.Model) == "" {
		return fmt.Errorf("%w: text model is not set", domain.ErrConfiguration)
	}
	return nil
}

// Generate sends one chat completion with key and classifies the result.
func (t *Text) Generate(ctx context.Context, key string, req domain.Request) domain.Outcome {
	client := newOpenAIClient(key, t.cfg.BaseURL, t.cfg.HTTPClient)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: t.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: t.cfg.Temperature,
	})
	if err != nil {
		return fromOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Permanent(http.StatusOK, domain.ErrMalformedUpstream.Error()+": no choices")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return domain.Permanent(http.StatusOK, domain.ErrMalformedUpstream.Error()+": empty content")
	}
	return domain.Success(text)
}
