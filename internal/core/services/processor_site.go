package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/brasaforge/forge/internal/core/domain"
)

// processGenerateSite builds a full site from the briefing carried in the
// payload. Content is persisted and the tracking row completed before the
// credit debit; a failed debit therefore leaves the generated content in
// place for this attempt, which is the accepted ordering.
func (p *Processors) processGenerateSite(ctx context.Context, job *domain.QueueJob) (*domain.JobResult, error) {
	payload := job.Payload

	provider, err := p.providers.Get(payload.ProviderID)
	if err != nil {
		return nil, err
	}

	var briefing SiteBriefing
	if err := json.Unmarshal([]byte(payload.Prompt), &briefing); err != nil {
		return nil, fmt.Errorf("failed to decode site briefing: %w", err)
	}

	gen, err := provider.GenerateText(ctx, domain.TextRequest{
		Model:       payload.Model,
		Prompt:      BuildSitePrompt(briefing) + "\n\n" + briefing.Prompt,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("site generation call failed: %w", err)
	}

	doc, err := ParseSiteDocument(gen.Content)
	if err != nil {
		return nil, err
	}

	// The user's own naming always wins over whatever the model invented.
	doc.Site.Name = briefing.Title
	doc.Site.Description = briefing.Prompt

	totalCredits := gen.CostInCredits
	if totalCredits == 0 {
		totalCredits = defaultSiteCost
	}

	if imageGen, ok := provider.(domain.ImageGenerator); ok {
		totalCredits += p.generatePageImages(ctx, imageGen, doc)
	}

	if err := p.sites.UpsertPage(ctx, payload.SiteID, "/", doc); err != nil {
		return nil, fmt.Errorf("failed to persist site content: %w", err)
	}
	if err := p.sites.MarkSiteReady(ctx, payload.SiteID, briefing.Palette, briefing.Sector); err != nil {
		return nil, fmt.Errorf("failed to mark site ready: %w", err)
	}

	result := &domain.JobResult{
		Kind:        domain.JobKindGenerateSite,
		SiteID:      payload.SiteID,
		CostCredits: totalCredits,
	}

	if err := p.tracker.MarkCompleted(ctx, job.ID, totalCredits, result); err != nil {
		return nil, fmt.Errorf("failed to complete tracking row: %w", err)
	}

	if _, err := p.ledger.Debit(ctx, payload.UserID, domain.DebitRequest{
		Amount:      math.Ceil(totalCredits),
		Reason:      string(domain.JobKindGenerateSite),
		ReferenceID: payload.SiteID,
	}); err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	return result, nil
}

// generatePageImages fills at most two media placeholders per page, one
// image at a time. Individual failures are logged and skipped; their cost
// is simply not accumulated.
func (p *Processors) generatePageImages(ctx context.Context, imageGen domain.ImageGenerator, doc *domain.SiteDocument) float64 {
	var accrued float64

	for pi := range doc.Pages {
		page := &doc.Pages[pi]
		generated := 0

		for si := 0; si < len(page.Sections) && generated < 2; si++ {
			media := page.Sections[si].Media
			for mi := 0; mi < len(media) && generated < 2; mi++ {
				res, err := imageGen.GenerateImage(ctx, domain.ImageRequest{
					Prompt: media[mi].Prompt,
					Size:   domain.ImageSize1024,
				})
				generated++
				if err != nil {
					p.logger.Warn("image generation failed", "page", page.Route, "error", err)
					continue
				}
				media[mi].URL = res.URL
				if res.CostInCredits > 0 {
					accrued += res.CostInCredits
				} else {
					accrued += defaultImageCost
				}
			}
		}
	}

	return accrued
}
