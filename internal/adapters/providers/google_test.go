package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasaforge/forge/internal/core/domain"
)

func TestGoogleGenerateText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))
		assert.Contains(t, r.URL.Path, googleDefaultTextModel)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "bom dia"}]}}],
			"usageMetadata": {"promptTokenCount": 80, "candidatesTokenCount": 30}
		}`))
	}))
	t.Cleanup(ts.Close)

	provider := NewGoogleProvider("secret")
	provider.baseURL = ts.URL

	res, err := provider.GenerateText(context.Background(), domain.TextRequest{Prompt: "cumprimente"})
	require.NoError(t, err)
	assert.Equal(t, "bom dia", res.Content)
	assert.Equal(t, 80, res.TokensIn)
	assert.Equal(t, 30, res.TokensOut)
}

func TestGoogleGenerateImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateImage"))
		w.Write([]byte(`{"image": {"url": "https://img.example/g.png"}}`))
	}))
	t.Cleanup(ts.Close)

	provider := NewGoogleProvider("secret")
	provider.baseURL = ts.URL

	res, err := provider.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "logo"})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/g.png", res.URL)
	assert.Equal(t, float64(4), res.CostInCredits)
}

func TestGoogleGenerateImage_ModelUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(ts.Close)

	provider := NewGoogleProvider("secret")
	provider.baseURL = ts.URL

	_, err := provider.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "logo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}
