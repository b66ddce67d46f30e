package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

// DefaultPollInterval is how long the worker sleeps when the queue is empty.
const DefaultPollInterval = 3 * time.Second

// Worker is the single logical thread of control that drains the queue:
// claim, dispatch, complete or report failure, sleep when idle. It is a
// polling loop, not a subscription.
type Worker struct {
	logger       *slog.Logger
	queue        *QueueEngine
	processors   *Processors
	tracker      ports.JobTracker
	pollInterval time.Duration
}

func NewWorker(logger *slog.Logger, queue *QueueEngine, processors *Processors, tracker ports.JobTracker, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Worker{
		logger:       logger,
		queue:        queue,
		processors:   processors,
		tracker:      tracker,
		pollInterval: pollInterval,
	}
}

// Run blocks until ctx is cancelled. Store errors during a cycle are logged
// and the loop continues after the poll interval; they are transient by the
// error taxonomy.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim next job", "error", err)
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		if job == nil {
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		w.execute(ctx, job)
	}
}

// RunOnce performs a single claim-and-execute cycle. It reports whether a
// job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *domain.QueueJob) {
	w.logger.Info("processing job", "job_id", job.ID, "kind", job.Payload.Kind, "attempt", job.Attempts)

	// Tracking-row updates are best effort; the queue envelope is the
	// source of truth for lifecycle state.
	if err := w.tracker.MarkProcessing(ctx, job.ID); err != nil {
		w.logger.Warn("failed to mark tracking row processing", "job_id", job.ID, "error", err)
	}

	result, err := w.processors.Process(ctx, job)
	if err != nil {
		w.logger.Error("job failed", "job_id", job.ID, "kind", job.Payload.Kind, "error", err)
		if reportErr := w.queue.ReportFailure(ctx, job.ID, err); reportErr != nil {
			w.logger.Error("failed to report job failure", "job_id", job.ID, "error", reportErr)
			return
		}
		w.syncFailedTracking(ctx, job.ID)
		return
	}

	if err := w.queue.Complete(ctx, job.ID, result); err != nil {
		w.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
	}
}

// syncFailedTracking mirrors a permanent queue failure onto the tracking
// row so polling clients see the terminal state without reading the queue.
func (w *Worker) syncFailedTracking(ctx context.Context, jobID string) {
	job, err := w.queue.GetJob(ctx, jobID)
	if err != nil || job.Status != domain.JobStatusFailed {
		return
	}
	if err := w.tracker.MarkFailed(ctx, jobID, job.LastError); err != nil {
		w.logger.Warn("failed to mark tracking row failed", "job_id", jobID, "error", err)
	}
}

// sleep waits one poll interval; false means ctx was cancelled.
func (w *Worker) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		w.logger.Info("worker stopped")
		return false
	case <-time.After(w.pollInterval):
		return true
	}
}
