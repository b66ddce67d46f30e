package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/brasaforge/forge/internal/core/domain"
)

const (
	openAIDefaultTextModel  = "gpt-4o-mini"
	openAIDefaultImageModel = "gpt-image-1"
	openAITimeout           = 60 * time.Second
	openAIImageTimeout      = 120 * time.Second
)

var openAITokenRates = map[string]tokenRate{
	"gpt-4o-mini": {input: 0.00015, output: 0.0006},
	"gpt-4.1":     {input: 0.0005, output: 0.0015},
}

// OpenAIProvider generates text and images through the official SDK.
type OpenAIProvider struct {
	client openai.Client
}

var (
	_ domain.Provider       = (*OpenAIProvider)(nil)
	_ domain.ImageGenerator = (*OpenAIProvider)(nil)
	_ domain.CostEstimator  = (*OpenAIProvider)(nil)
)

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (p *OpenAIProvider) ID() domain.ProviderID {
	return domain.ProviderOpenAI
}

func (p *OpenAIProvider) Label() string {
	return "OpenAI"
}

func (p *OpenAIProvider) GenerateText(ctx context.Context, req domain.TextRequest) (domain.TextResult, error) {
	ctx, cancel := context.WithTimeout(ctx, openAITimeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = openAIDefaultTextModel
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.8
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("openai text generation failed: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return domain.TextResult{}, fmt.Errorf("openai returned empty response")
	}

	tokensIn := int(completion.Usage.PromptTokens)
	tokensOut := int(completion.Usage.CompletionTokens)
	cost, _ := p.EstimateCost(ctx, domain.CostEstimate{
		Model:            model,
		PromptTokens:     tokensIn,
		CompletionTokens: tokensOut,
	})

	return domain.TextResult{
		Content:       completion.Choices[0].Message.Content,
		TokensIn:      tokensIn,
		TokensOut:     tokensOut,
		CostInCredits: cost,
	}, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, openAIImageTimeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = openAIDefaultImageModel
	}
	size := req.Size
	if size == "" {
		size = domain.ImageSize1024
	}

	images, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModel(model),
		Prompt:         req.Prompt,
		Size:           openai.ImageGenerateParamsSize(size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("openai image generation failed: %w", err)
	}
	if len(images.Data) == 0 || images.Data[0].URL == "" {
		return domain.ImageResult{}, fmt.Errorf("openai did not return an image url")
	}

	return domain.ImageResult{
		URL:           images.Data[0].URL,
		RevisedPrompt: images.Data[0].RevisedPrompt,
		CostInCredits: 5,
	}, nil
}

func (p *OpenAIProvider) EstimateCost(_ context.Context, est domain.CostEstimate) (float64, error) {
	usd := estimateUSD(openAITokenRates, openAIDefaultTextModel, est.Model, est.PromptTokens, est.CompletionTokens)
	return creditsFromUSD(usd), nil
}
