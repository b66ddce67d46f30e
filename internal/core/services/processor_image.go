package services

import (
	"context"
	"fmt"
	"math"

	"github.com/brasaforge/forge/internal/core/domain"
)

// processGenerateImage runs a standalone image generation. It touches no
// site content; the resulting provider URL is recorded on the tracking row.
func (p *Processors) processGenerateImage(ctx context.Context, job *domain.QueueJob) (*domain.JobResult, error) {
	payload := job.Payload

	provider, err := p.providers.Get(payload.ProviderID)
	if err != nil {
		return nil, err
	}

	imageGen, ok := provider.(domain.ImageGenerator)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support image generation", payload.ProviderID)
	}

	size := payload.Size
	if size == "" {
		size = domain.ImageSize1024
	}

	res, err := imageGen.GenerateImage(ctx, domain.ImageRequest{
		Model:  payload.Model,
		Prompt: payload.Prompt,
		Size:   size,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation call failed: %w", err)
	}

	cost := res.CostInCredits
	if cost == 0 {
		cost = defaultImageCost
	}

	referenceID := payload.SiteID
	if referenceID == "" {
		referenceID = job.ID
	}

	result := &domain.JobResult{
		Kind:        domain.JobKindGenerateImage,
		SiteID:      payload.SiteID,
		ImageURL:    res.URL,
		CostCredits: cost,
	}

	if err := p.tracker.MarkCompleted(ctx, job.ID, cost, result); err != nil {
		return nil, fmt.Errorf("failed to complete tracking row: %w", err)
	}

	if _, err := p.ledger.Debit(ctx, payload.UserID, domain.DebitRequest{
		Amount:      math.Ceil(cost),
		Reason:      string(domain.JobKindGenerateImage),
		ReferenceID: referenceID,
	}); err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	return result, nil
}
