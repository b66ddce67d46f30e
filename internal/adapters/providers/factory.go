// Package providers assembles the AI capability backends behind the
// uniform domain.Provider interface.
package providers

import (
	"fmt"

	"github.com/brasaforge/forge/internal/core/domain"
)

// Config carries the per-backend credentials. Backends without a key are
// simply absent from the registry.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
}

// Info is the capability listing exposed to API clients.
type Info struct {
	ID             domain.ProviderID `json:"id"`
	Label          string            `json:"label"`
	SupportsImages bool              `json:"supportsImages"`
}

// Registry resolves providers by id.
type Registry struct {
	providers map[domain.ProviderID]domain.Provider
	order     []domain.ProviderID
}

// Build constructs the registry from credentials, registering every backend
// with a configured key.
func Build(cfg Config) *Registry {
	r := &Registry{providers: map[domain.ProviderID]domain.Provider{}}

	if cfg.OpenAIAPIKey != "" {
		r.register(NewOpenAIProvider(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		r.register(NewAnthropicProvider(cfg.AnthropicAPIKey))
	}
	if cfg.GoogleAPIKey != "" {
		r.register(NewGoogleProvider(cfg.GoogleAPIKey))
	}

	return r
}

func (r *Registry) register(p domain.Provider) {
	r.providers[p.ID()] = p
	r.order = append(r.order, p.ID())
}

// Get returns the provider for id or domain.ErrProviderNotConfigured.
func (r *Registry) Get(id domain.ProviderID) (domain.Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotConfigured, id)
	}
	return p, nil
}

// List returns the configured backends in registration order.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		infos = append(infos, Info{
			ID:             p.ID(),
			Label:          p.Label(),
			SupportsImages: domain.SupportsImages(p),
		})
	}
	return infos
}

// creditsFromUSD converts a dollar amount to internal credits (1 credit is
// about $0.01), charging at least one credit per priced call.
func creditsFromUSD(usd float64) float64 {
	credits := usd / 0.01
	rounded := float64(int(credits*100+0.5)) / 100
	if rounded < 1 {
		return 1
	}
	return rounded
}

// tokenRate is a per-1k-token USD price pair.
type tokenRate struct {
	input  float64
	output float64
}

func estimateUSD(rates map[string]tokenRate, fallback string, model string, promptTokens, completionTokens int) float64 {
	rate, ok := rates[model]
	if !ok {
		rate = rates[fallback]
	}
	return float64(promptTokens)/1000*rate.input + float64(completionTokens)/1000*rate.output
}
