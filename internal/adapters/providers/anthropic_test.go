package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasaforge/forge/internal/core/domain"
)

func TestAnthropicGenerateText(t *testing.T) {
	var captured map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "ola"}],
			"usage": {"input_tokens": 120, "output_tokens": 40}
		}`))
	}))
	t.Cleanup(ts.Close)

	provider := NewAnthropicProvider("secret")
	provider.baseURL = ts.URL

	res, err := provider.GenerateText(context.Background(), domain.TextRequest{
		Prompt: "escreva um haiku",
		System: "responda em portugues",
	})
	require.NoError(t, err)

	assert.Equal(t, "ola", res.Content)
	assert.Equal(t, 120, res.TokensIn)
	assert.Equal(t, 40, res.TokensOut)
	assert.Positive(t, res.CostInCredits)

	assert.Equal(t, anthropicDefaultModel, captured["model"])
	assert.Equal(t, "responda em portugues", captured["system"])
	assert.EqualValues(t, 2048, captured["max_tokens"])
}

func TestAnthropicGenerateText_SurfacesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(ts.Close)

	provider := NewAnthropicProvider("secret")
	provider.baseURL = ts.URL

	_, err := provider.GenerateText(context.Background(), domain.TextRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicGenerateText_EmptyContentIsAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "usage": {"input_tokens": 1, "output_tokens": 0}}`))
	}))
	t.Cleanup(ts.Close)

	provider := NewAnthropicProvider("secret")
	provider.baseURL = ts.URL

	_, err := provider.GenerateText(context.Background(), domain.TextRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
