package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brasaforge/forge/internal/core/domain"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-sonnet-20240229"
)

var anthropicTokenRates = map[string]tokenRate{
	"claude-3-haiku-20240307":  {input: 0.00025, output: 0.00125},
	"claude-3-sonnet-20240229": {input: 0.003, output: 0.015},
	"claude-3-opus-20240229":   {input: 0.015, output: 0.075},
}

// AnthropicProvider generates text via the Messages API. It carries no
// image capability.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

var (
	_ domain.Provider      = (*AnthropicProvider)(nil)
	_ domain.CostEstimator = (*AnthropicProvider)(nil)
)

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: anthropicBaseURL,
		apiKey:  apiKey,
	}
}

func (p *AnthropicProvider) ID() domain.ProviderID {
	return domain.ProviderAnthropic
}

func (p *AnthropicProvider) Label() string {
	return "Anthropic Claude"
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) GenerateText(ctx context.Context, req domain.TextRequest) (domain.TextResult, error) {
	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
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
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to encode anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to create anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("anthropic text generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errPayload, _ := io.ReadAll(resp.Body)
		return domain.TextResult{}, fmt.Errorf("anthropic text generation failed (%d): %s", resp.StatusCode, string(errPayload))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.TextResult{}, fmt.Errorf("failed to decode anthropic response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return domain.TextResult{}, fmt.Errorf("anthropic returned empty response")
	}

	cost, _ := p.EstimateCost(ctx, domain.CostEstimate{
		Model:            model,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	})

	return domain.TextResult{
		Content:       text,
		TokensIn:      parsed.Usage.InputTokens,
		TokensOut:     parsed.Usage.OutputTokens,
		CostInCredits: cost,
	}, nil
}

func (p *AnthropicProvider) EstimateCost(_ context.Context, est domain.CostEstimate) (float64, error) {
	usd := estimateUSD(anthropicTokenRates, anthropicDefaultModel, est.Model, est.PromptTokens, est.CompletionTokens)
	return creditsFromUSD(usd), nil
}
