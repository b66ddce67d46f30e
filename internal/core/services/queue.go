package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

const (
	// DefaultMaxAttempts is the claim ceiling before permanent failure.
	DefaultMaxAttempts = 3

	// DefaultStaleAfter is how long a claimed job may sit in the processing
	// index before the pruner hands it back to the pending queue.
	DefaultStaleAfter = 5 * time.Minute

	// maxBackoff clamps the exponential retry delay.
	maxBackoff = 60 * time.Second
)

// Keyspace names the three well-known queue keys. Prefix isolates parallel
// deployments (and tests) sharing one store.
type Keyspace struct {
	Prefix string
}

func (k Keyspace) Pending() string {
	return k.Prefix + "queue:pending"
}

func (k Keyspace) Processing() string {
	return k.Prefix + "queue:processing"
}

func (k Keyspace) Job(id string) string {
	return k.Prefix + "queue:job:" + id
}

// EnqueueOptions tune a single enqueue. The zero value is a valid default.
type EnqueueOptions struct {
	// ID links the envelope to an externally created tracking row. A new
	// UUID is assigned when empty.
	ID string

	// Delay postpones the job's first eligibility for claiming.
	Delay time.Duration

	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int
}

// QueueEngine implements the durable job queue over a CommandStore. Each
// operation is a sequence of independent store round trips in a prescribed
// order; there is no cross-call transaction. Claims are serialized by an
// in-process mutex, which makes them race-free for the supported
// single-worker-process deployment.
type QueueEngine struct {
	logger *slog.Logger
	store  ports.CommandStore
	keys   Keyspace

	claimMu sync.Mutex
	now     func() time.Time
}

func NewQueueEngine(logger *slog.Logger, store ports.CommandStore, keys Keyspace) *QueueEngine {
	return &QueueEngine{
		logger: logger,
		store:  store,
		keys:   keys,
		now:    time.Now,
	}
}

// Enqueue creates a pending envelope for payload, persists it and indexes
// it by readiness time.
func (q *QueueEngine) Enqueue(ctx context.Context, payload domain.JobPayload, opts EnqueueOptions) (*domain.QueueJob, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	job := &domain.QueueJob{
		ID:          id,
		Payload:     payload,
		ScheduledAt: q.now().Add(opts.Delay).UnixMilli(),
		Attempts:    0,
		MaxAttempts: maxAttempts,
		Status:      domain.JobStatusPending,
	}

	if err := q.writeJob(ctx, job); err != nil {
		return nil, err
	}
	if err := q.store.ZAdd(ctx, q.keys.Pending(), float64(job.ScheduledAt), id); err != nil {
		return nil, fmt.Errorf("failed to index job %s as pending: %w", id, err)
	}

	return job, nil
}

// ClaimNext takes ownership of the earliest-scheduled due job, if any. It
// inspects only the head of the pending index: an earliest job that is not
// yet due means no job is returned even if later entries happen to be due.
// A nil job with nil error means the queue had nothing claimable.
func (q *QueueEngine) ClaimNext(ctx context.Context) (*domain.QueueJob, error) {
	q.claimMu.Lock()
	defer q.claimMu.Unlock()

	ids, err := q.store.ZRange(ctx, q.keys.Pending(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to peek pending queue: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// Orphaned index entry: the envelope record is gone.
		if err := q.store.ZRem(ctx, q.keys.Pending(), id); err != nil {
			return nil, fmt.Errorf("failed to drop orphaned pending entry %s: %w", id, err)
		}
		return nil, nil
	}

	if job.ScheduledAt > q.now().UnixMilli() {
		return nil, nil
	}

	job.Status = domain.JobStatusProcessing
	job.Attempts++

	if err := q.store.ZRem(ctx, q.keys.Pending(), id); err != nil {
		return nil, fmt.Errorf("failed to remove job %s from pending index: %w", id, err)
	}
	if err := q.store.ZAdd(ctx, q.keys.Processing(), float64(q.now().UnixMilli()), id); err != nil {
		return nil, fmt.Errorf("failed to index job %s as processing: %w", id, err)
	}
	if err := q.writeJob(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// Complete marks a job terminal-successful and stores its result. A missing
// envelope is a no-op.
func (q *QueueEngine) Complete(ctx context.Context, id string, result *domain.JobResult) error {
	job, err := q.loadJob(ctx, id)
	if err != nil || job == nil {
		return err
	}

	job.Status = domain.JobStatusCompleted
	job.Result = result

	if err := q.store.ZRem(ctx, q.keys.Processing(), id); err != nil {
		return fmt.Errorf("failed to remove job %s from processing index: %w", id, err)
	}
	return q.writeJob(ctx, job)
}

// Fail records a failure on the envelope and removes it from the processing
// index. Callers normally follow with Retry, which decides revival versus
// permanent failure; ReportFailure does both in one call.
func (q *QueueEngine) Fail(ctx context.Context, id string, failure *domain.JobFailure) error {
	job, err := q.loadJob(ctx, id)
	if err != nil || job == nil {
		return err
	}

	job.Status = domain.JobStatusFailed
	job.LastError = failure.Message
	job.FailureCode = failure.Code

	if err := q.store.ZRem(ctx, q.keys.Processing(), id); err != nil {
		return fmt.Errorf("failed to remove job %s from processing index: %w", id, err)
	}
	return q.writeJob(ctx, job)
}

// Retry revives a failed job with exponential backoff, or finalizes it as
// permanently failed once attempts are exhausted.
func (q *QueueEngine) Retry(ctx context.Context, id string) error {
	job, err := q.loadJob(ctx, id)
	if err != nil || job == nil {
		return err
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = domain.JobStatusFailed
		if job.LastError == "" {
			job.LastError = "Max attempts reached"
		}
		if job.FailureCode == "" {
			job.FailureCode = domain.FailureAttemptsExhausted
		}
		if err := q.writeJob(ctx, job); err != nil {
			return err
		}
		if err := q.store.ZRem(ctx, q.keys.Processing(), id); err != nil {
			return fmt.Errorf("failed to remove job %s from processing index: %w", id, err)
		}
		return nil
	}

	backoff := BackoffForAttempt(job.Attempts)
	job.Status = domain.JobStatusPending
	job.ScheduledAt = q.now().Add(backoff).UnixMilli()

	if err := q.writeJob(ctx, job); err != nil {
		return err
	}
	if err := q.store.ZRem(ctx, q.keys.Processing(), id); err != nil {
		return fmt.Errorf("failed to remove job %s from processing index: %w", id, err)
	}
	if err := q.store.ZAdd(ctx, q.keys.Pending(), float64(job.ScheduledAt), id); err != nil {
		return fmt.Errorf("failed to re-index job %s as pending: %w", id, err)
	}
	return nil
}

// ReportFailure records the error and immediately decides revival versus
// permanent failure. Observable semantics are identical to Fail followed by
// Retry.
func (q *QueueEngine) ReportFailure(ctx context.Context, id string, err error) error {
	failure := &domain.JobFailure{Code: domain.ClassifyError(err), Message: err.Error()}
	if failErr := q.Fail(ctx, id, failure); failErr != nil {
		return failErr
	}
	return q.Retry(ctx, id)
}

// PruneStaleProcessing scans the processing index and revives jobs whose
// worker apparently died mid-processing. It must be driven periodically;
// it is the only safety net against claimed-but-abandoned jobs.
func (q *QueueEngine) PruneStaleProcessing(ctx context.Context, staleAfter time.Duration) error {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	ids, err := q.store.ZRange(ctx, q.keys.Processing(), 0, -1)
	if err != nil {
		return fmt.Errorf("failed to scan processing index: %w", err)
	}

	nowMillis := q.now().UnixMilli()
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			if err := q.store.ZRem(ctx, q.keys.Processing(), id); err != nil {
				return fmt.Errorf("failed to drop stale processing entry %s: %w", id, err)
			}
			continue
		}
		if nowMillis-job.ScheduledAt > staleAfter.Milliseconds() {
			q.logger.Warn("reclaiming stale processing job", "job_id", id, "attempts", job.Attempts)
			if err := q.Retry(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetJob is a pure lookup of the persisted envelope.
func (q *QueueEngine) GetJob(ctx context.Context, id string) (*domain.QueueJob, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// BackoffForAttempt computes the retry delay after the given number of
// claim attempts: min(2^attempts * 1s, 60s).
func BackoffForAttempt(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		// 2^6 s already exceeds the clamp; avoid shift overflow.
		return maxBackoff
	}
	backoff := time.Duration(1<<uint(attempts)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (q *QueueEngine) writeJob(ctx context.Context, job *domain.QueueJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := q.store.Set(ctx, q.keys.Job(job.ID), string(raw), 0); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

// loadJob returns (nil, nil) when the envelope record is absent.
func (q *QueueEngine) loadJob(ctx context.Context, id string) (*domain.QueueJob, error) {
	raw, ok, err := q.store.Get(ctx, q.keys.Job(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}

	var job domain.QueueJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

