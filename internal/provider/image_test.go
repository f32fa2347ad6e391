package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haukened/deckgen/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceGenerateSuccess(t *testing.T) {
	var got hfRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	c := NewHuggingFace(HuggingFaceConfig{URL: srv.URL, QualitySuffix: ", sharp", Width: 512, Height: 256, HTTPClient: srv.Client()})
	out := c.Generate(context.Background(), "hf-1", domain.Request{Action: domain.ActionImage, Prompt: "a cat", NegativePrompt: "blurry"})
	require.True(t, out.OK(), out.String())
	assert.Equal(t, DataURL("image/png", pngBytes), out.Payload)
	assert.Equal(t, "Bearer hf-1", auth)
	assert.Equal(t, "a cat, sharp", got.Inputs)
	assert.Equal(t, "blurry", got.Parameters.NegativePrompt)
	assert.Equal(t, 512, got.Parameters.Width)
	assert.Equal(t, 256, got.Parameters.Height)
}

func TestHuggingFaceSniffsGenericContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()
	out := NewHuggingFace(HuggingFaceConfig{URL: srv.URL, HTTPClient: srv.Client()}).
		Generate(context.Background(), "k", domain.Request{Action: domain.ActionImage, Prompt: "p"})
	require.True(t, out.OK(), out.String())
	assert.True(t, strings.HasPrefix(out.Payload, "data:image/png;base64,"))
}

func TestHuggingFaceFailuresArePermanent(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ctype  string
		body   string
		reason string
	}{
		{"model loading", 503, "application/json", `{"error":"Model is loading","estimated_time":20}`, "Model is loading"},
		{"rate limited", 429, "application/json", `{"error":"Rate limit reached"}`, "Rate limit reached"},
		{"bad token", 401, "application/json", `{"error":"Invalid credentials"}`, "Invalid credentials"},
		{"json on 200", 200, "application/json", `{"error":"weird"}`, "not an image"},
		{"empty 200", 200, "image/png", ``, "empty body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			out := NewHuggingFace(HuggingFaceConfig{URL: srv.URL, HTTPClient: srv.Client()}).
				Generate(context.Background(), "k", domain.Request{Action: domain.ActionImage, Prompt: "p"})
			assert.Equal(t, domain.OutcomePermanent, out.Kind)
			assert.Equal(t, tc.status, out.Status)
			assert.Contains(t, out.Reason, tc.reason)
		})
	}
}

func TestHuggingFaceOversizedImageIsPermanent(t *testing.T) {
	for _, size := range []int{maxImageBytes, maxImageBytes + 1} {
		body := make([]byte, size)
		copy(body, pngBytes)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		}))
		out := NewHuggingFace(HuggingFaceConfig{URL: srv.URL, HTTPClient: srv.Client()}).
			Generate(context.Background(), "k", domain.Request{Action: domain.ActionImage, Prompt: "p"})
		srv.Close()

		if size <= maxImageBytes {
			require.True(t, out.OK(), out.String())
			continue
		}
		assert.Equal(t, domain.OutcomePermanent, out.Kind)
		assert.Equal(t, http.StatusOK, out.Status)
		assert.Contains(t, out.Reason, domain.ErrMalformedUpstream.Error())
		assert.Contains(t, out.Reason, "exceeds")
		assert.Empty(t, out.Payload)
	}
}

func TestHuggingFaceDefaults(t *testing.T) {
	c := NewHuggingFace(HuggingFaceConfig{})
	assert.Equal(t, "huggingface", c.Name())
	assert.Equal(t, DefaultHuggingFaceURL, c.cfg.URL)
	assert.NotNil(t, c.cfg.HTTPClient)
}

func imagesServer(t *testing.T, status int, body string, seen func(map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			var p map[string]any
			_ = json.NewDecoder(r.Body).Decode(&p)
			seen(p)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIImageGenerateSuccess(t *testing.T) {
	var payload map[string]any
	b64 := base64.StdEncoding.EncodeToString(pngBytes)
	srv := imagesServer(t, 200, `{"created":1,"data":[{"b64_json":"`+b64+`"}]}`, func(p map[string]any) { payload = p })

	c := NewOpenAIImage(OpenAIImageConfig{BaseURL: srv.URL + "/v1", Model: "img-model", HTTPClient: srv.Client()})
	out := c.Generate(context.Background(), "k", domain.Request{Action: domain.ActionImage, Prompt: "a cat", NegativePrompt: "dogs"})
	require.True(t, out.OK(), out.String())
	assert.Equal(t, "data:image/png;base64,"+b64, out.Payload)
	assert.Equal(t, "a cat. Avoid: dogs", payload["prompt"])
	assert.Equal(t, "b64_json", payload["response_format"])
	assert.Equal(t, "1024x1024", payload["size"])
	assert.Equal(t, "openai-image", c.Name())
}

func TestOpenAIImageFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited is still permanent", 429, `{"error":{"message":"slow"}}`},
		{"server error", 500, `{"error":{"message":"boom"}}`},
		{"no data", 200, `{"created":1,"data":[]}`},
		{"bad base64", 200, `{"created":1,"data":[{"b64_json":"***"}]}`},
		{"not an image", 200, `{"created":1,"data":[{"b64_json":"` + base64.StdEncoding.EncodeToString([]byte("hello world")) + `"}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := imagesServer(t, tc.status, tc.body, nil)
			out := NewOpenAIImage(OpenAIImageConfig{BaseURL: srv.URL + "/v1", HTTPClient: srv.Client()}).
				Generate(context.Background(), "k", domain.Request{Action: domain.ActionImage, Prompt: "p"})
			assert.Equal(t, domain.OutcomePermanent, out.Kind, out.String())
		})
	}
}
