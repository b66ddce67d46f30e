package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

// JobTracker stores the relational rows behind the job status endpoint.
type JobTracker struct {
	pool *pgxpool.Pool
}

var _ ports.JobTracker = (*JobTracker)(nil)

func NewJobTracker(pool *pgxpool.Pool) *JobTracker {
	return &JobTracker{pool: pool}
}

func (t *JobTracker) Insert(ctx context.Context, job domain.TrackedJob) error {
	var metadata []byte
	if len(job.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(job.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode job metadata: %w", err)
		}
	}

	_, err := t.pool.Exec(ctx, `
		INSERT INTO generation_jobs (id, user_id, site_id, kind, status, provider_id, model, prompt, estimated_credits, metadata, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, now(), now())`,
		job.ID, job.UserID, job.SiteID, job.Kind, domain.TrackedQueued, job.ProviderID, job.Model, job.Prompt, job.EstimatedCredits, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job row: %w", err)
	}
	return nil
}

func (t *JobTracker) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = $2, updated_at = now() WHERE id = $1`,
		jobID, domain.TrackedProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return nil
}

func (t *JobTracker) MarkCompleted(ctx context.Context, jobID string, costCredits float64, result *domain.JobResult) error {
	var raw []byte
	if result != nil {
		var err error
		raw, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}
	}

	_, err := t.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, cost_credits = $3, result = $4, error_message = NULL, updated_at = now()
		WHERE id = $1`,
		jobID, domain.TrackedCompleted, costCredits, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (t *JobTracker) MarkFailed(ctx context.Context, jobID string, message string) error {
	_, err := t.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		jobID, domain.TrackedFailed, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (t *JobTracker) Get(ctx context.Context, jobID, userID string) (*domain.TrackedJob, error) {
	var (
		job      domain.TrackedJob
		siteID   *string
		prompt   *string
		result   []byte
		errMsg   *string
		metadata []byte
	)
	err := t.pool.QueryRow(ctx, `
		SELECT id, user_id, site_id, kind, status, provider_id, model, prompt,
		       estimated_credits, cost_credits, result, error_message, metadata,
		       created_at, updated_at
		FROM generation_jobs
		WHERE id = $1 AND user_id = $2`,
		jobID, userID,
	).Scan(
		&job.ID, &job.UserID, &siteID, &job.Kind, &job.Status, &job.ProviderID, &job.Model, &prompt,
		&job.EstimatedCredits, &job.CostCredits, &result, &errMsg, &metadata,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job row: %w", err)
	}

	if siteID != nil {
		job.SiteID = *siteID
	}
	if prompt != nil {
		job.Prompt = *prompt
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if len(result) > 0 {
		job.Result = &domain.JobResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode job metadata: %w", err)
		}
	}
	return &job, nil
}
