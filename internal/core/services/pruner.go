package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StalePruner drives QueueEngine.PruneStaleProcessing on a cron schedule.
// The engine itself never reclaims abandoned jobs on its own; without this
// loop a crashed worker would strand its claimed job forever.
type StalePruner struct {
	logger     *slog.Logger
	queue      *QueueEngine
	staleAfter time.Duration
	schedule   string
	cron       *cron.Cron
}

// NewStalePruner builds a pruner with the given cron spec (standard five
// field syntax, e.g. "* * * * *" for every minute).
func NewStalePruner(logger *slog.Logger, queue *QueueEngine, schedule string, staleAfter time.Duration) *StalePruner {
	if schedule == "" {
		schedule = "* * * * *"
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &StalePruner{
		logger:     logger,
		queue:      queue,
		staleAfter: staleAfter,
		schedule:   schedule,
	}
}

// Run starts the cron loop and blocks until ctx is cancelled.
func (p *StalePruner) Run(ctx context.Context) error {
	p.cron = cron.New()
	_, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.queue.PruneStaleProcessing(ctx, p.staleAfter); err != nil {
			p.logger.Error("stale processing prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid pruner schedule %q: %w", p.schedule, err)
	}

	p.logger.Info("stale pruner started", "schedule", p.schedule, "stale_after", p.staleAfter)
	p.cron.Start()

	<-ctx.Done()
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.logger.Info("stale pruner stopped")
	return nil
}
