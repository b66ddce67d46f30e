package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/brasaforge/forge/internal/core/domain"
)

// processEditSection rewrites one section of a persisted site with the
// model's proposal merged over the original.
func (p *Processors) processEditSection(ctx context.Context, job *domain.QueueJob) (*domain.JobResult, error) {
	payload := job.Payload

	provider, err := p.providers.Get(payload.ProviderID)
	if err != nil {
		return nil, err
	}

	doc, err := p.sites.GetPage(ctx, payload.SiteID, "/")
	if err != nil {
		if errors.Is(err, domain.ErrSiteNotFound) || errors.Is(err, domain.ErrPageNotFound) {
			return nil, domain.Failuref(domain.FailureMissingEntity, "site page not found for editing: %s", payload.SiteID)
		}
		return nil, fmt.Errorf("failed to load site page: %w", err)
	}

	page := doc.FindPage(payload.PageRoute)
	if page == nil {
		return nil, domain.Failuref(domain.FailureMissingEntity, "page %s not found in site document", payload.PageRoute)
	}

	idx := page.FindSection(payload.SectionID)
	if idx < 0 {
		return nil, domain.Failuref(domain.FailureMissingEntity, "section %s not found", payload.SectionID)
	}
	section := &page.Sections[idx]

	prompt, err := BuildEditPrompt(section, payload.Instruction)
	if err != nil {
		return nil, err
	}

	gen, err := provider.GenerateText(ctx, domain.TextRequest{
		Model:       payload.Model,
		Prompt:      prompt,
		Temperature: 0.6,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("section edit call failed: %w", err)
	}

	merged, err := MergeSection(section, gen.Content)
	if err != nil {
		return nil, err
	}
	page.Sections[idx] = *merged

	if err := p.sites.UpsertPage(ctx, payload.SiteID, "/", doc); err != nil {
		return nil, fmt.Errorf("failed to persist edited page: %w", err)
	}

	cost := gen.CostInCredits
	if cost == 0 {
		cost = defaultEditCost
	}

	result := &domain.JobResult{
		Kind:        domain.JobKindEditSection,
		SectionID:   payload.SectionID,
		Section:     merged,
		CostCredits: cost,
	}

	if err := p.tracker.MarkCompleted(ctx, job.ID, cost, result); err != nil {
		return nil, fmt.Errorf("failed to complete tracking row: %w", err)
	}

	if _, err := p.ledger.Debit(ctx, payload.UserID, domain.DebitRequest{
		Amount:      math.Ceil(cost),
		Reason:      string(domain.JobKindEditSection),
		ReferenceID: payload.SiteID + ":" + payload.SectionID,
	}); err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	return result, nil
}
