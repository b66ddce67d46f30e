package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

// Default costs charged when a provider does not price its own calls.
const (
	defaultSiteCost  = 10
	defaultEditCost  = 4
	defaultImageCost = 5
)

// ProviderResolver is the minimal lookup the processors need from the
// provider registry.
type ProviderResolver interface {
	Get(id domain.ProviderID) (domain.Provider, error)
}

// Processors executes claimed jobs: one procedure per job kind, each a
// linear sequence of provider calls, content writes and a final credit
// debit. A retried run re-executes generation and overwrites the same
// target content, but a repeated debit is a real double-charge, so the
// debit always comes last.
type Processors struct {
	logger    *slog.Logger
	providers ProviderResolver
	sites     ports.SiteRepository
	tracker   ports.JobTracker
	ledger    ports.CreditLedger
}

func NewProcessors(
	logger *slog.Logger,
	providers ProviderResolver,
	sites ports.SiteRepository,
	tracker ports.JobTracker,
	ledger ports.CreditLedger,
) *Processors {
	return &Processors{
		logger:    logger,
		providers: providers,
		sites:     sites,
		tracker:   tracker,
		ledger:    ledger,
	}
}

// Process dispatches the claimed envelope to the processor matching its
// payload kind and returns the typed result on success.
func (p *Processors) Process(ctx context.Context, job *domain.QueueJob) (*domain.JobResult, error) {
	switch job.Payload.Kind {
	case domain.JobKindGenerateSite:
		return p.processGenerateSite(ctx, job)
	case domain.JobKindEditSection:
		return p.processEditSection(ctx, job)
	case domain.JobKindGenerateImage:
		return p.processGenerateImage(ctx, job)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedJobKind, job.Payload.Kind)
	}
}
