package domain

import (
	"context"
	"errors"
)

type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
)

type ImageSize string

const (
	ImageSize256  ImageSize = "256x256"
	ImageSize512  ImageSize = "512x512"
	ImageSize1024 ImageSize = "1024x1024"
)

type TextRequest struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

type TextResult struct {
	Content       string
	TokensIn      int
	TokensOut     int
	CostInCredits float64 // zero when the provider cannot price the call
}

type ImageRequest struct {
	Model  string
	Prompt string
	Size   ImageSize
}

type ImageResult struct {
	URL           string
	RevisedPrompt string
	CostInCredits float64
}

type CostEstimate struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the uniform AI capability interface. Every backend generates
// text; image generation and cost estimation are optional capabilities
// discovered by asserting ImageGenerator / CostEstimator.
type Provider interface {
	ID() ProviderID
	Label() string
	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)
}

// ImageGenerator is implemented by providers that can generate images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// CostEstimator is implemented by providers that can price a call up front.
type CostEstimator interface {
	EstimateCost(ctx context.Context, est CostEstimate) (float64, error)
}

// SupportsImages reports whether p carries the image capability.
func SupportsImages(p Provider) bool {
	_, ok := p.(ImageGenerator)
	return ok
}

var ErrProviderNotConfigured = errors.New("provider not configured")
