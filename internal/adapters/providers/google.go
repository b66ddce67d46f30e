package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brasaforge/forge/internal/core/domain"
)

const (
	googleBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	googleDefaultTextModel  = "gemini-1.5-flash"
	googleDefaultImageModel = "imagen-3.0-generate-001"
)

var googleTokenRates = map[string]tokenRate{
	"gemini-1.5-flash": {input: 0.000075, output: 0.0003},
	"gemini-1.5-pro":   {input: 0.00035, output: 0.00105},
}

// GoogleProvider generates text via Gemini and images via Imagen.
type GoogleProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

var (
	_ domain.Provider       = (*GoogleProvider)(nil)
	_ domain.ImageGenerator = (*GoogleProvider)(nil)
	_ domain.CostEstimator  = (*GoogleProvider)(nil)
)

func NewGoogleProvider(apiKey string) *GoogleProvider {
	return &GoogleProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: googleBaseURL,
		apiKey:  apiKey,
	}
}

func (p *GoogleProvider) ID() domain.ProviderID {
	return domain.ProviderGoogle
}

func (p *GoogleProvider) Label() string {
	return "Google Gemini"
}

type googleTextResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GoogleProvider) GenerateText(ctx context.Context, req domain.TextRequest) (domain.TextResult, error) {
	model := req.Model
	if model == "" {
		model = googleDefaultTextModel
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": req.Prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     temperature,
			"maxOutputTokens": maxTokens,
		},
	}
	if req.System != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.System}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to encode google request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to create google request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("google text generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errPayload, _ := io.ReadAll(resp.Body)
		return domain.TextResult{}, fmt.Errorf("google text generation failed (%d): %s", resp.StatusCode, string(errPayload))
	}

	var parsed googleTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to decode google response: %w", err)
	}

	var parts []string
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		return domain.TextResult{}, fmt.Errorf("google provider returned empty response")
	}

	cost, _ := p.EstimateCost(ctx, domain.CostEstimate{
		Model:            model,
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
	})

	return domain.TextResult{
		Content:       text,
		TokensIn:      parsed.UsageMetadata.PromptTokenCount,
		TokensOut:     parsed.UsageMetadata.CandidatesTokenCount,
		CostInCredits: cost,
	}, nil
}

func (p *GoogleProvider) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.ImageResult, error) {
	model := req.Model
	if model == "" {
		model = googleDefaultImageModel
	}

	payload := map[string]any{
		"prompt":      map[string]string{"text": req.Prompt},
		"aspectRatio": "1:1",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("failed to encode google image request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateImage?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("failed to create google image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("google image generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ImageResult{}, fmt.Errorf("google image model %s not available", model)
	}
	if resp.StatusCode != http.StatusOK {
		errPayload, _ := io.ReadAll(resp.Body)
		return domain.ImageResult{}, fmt.Errorf("google image generation failed (%d): %s", resp.StatusCode, string(errPayload))
	}

	var parsed struct {
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.ImageResult{}, fmt.Errorf("failed to decode google image response: %w", err)
	}
	if parsed.Image.URL == "" {
		return domain.ImageResult{}, fmt.Errorf("google provider did not return an image url")
	}

	return domain.ImageResult{
		URL:           parsed.Image.URL,
		CostInCredits: 4,
	}, nil
}

func (p *GoogleProvider) EstimateCost(_ context.Context, est domain.CostEstimate) (float64, error) {
	usd := estimateUSD(googleTokenRates, googleDefaultTextModel, est.Model, est.PromptTokens, est.CompletionTokens)
	return creditsFromUSD(usd), nil
}
