package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasaforge/forge/internal/core/ports"
)

// APILogRecorder writes one audit row per API call. Failures are logged and
// swallowed; auditing never blocks a request.
type APILogRecorder struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

var _ ports.APILogRecorder = (*APILogRecorder)(nil)

func NewAPILogRecorder(logger *slog.Logger, pool *pgxpool.Pool) *APILogRecorder {
	return &APILogRecorder{logger: logger, pool: pool}
}

func (r *APILogRecorder) Record(ctx context.Context, entry ports.APILogEntry) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := r.pool.Exec(writeCtx, `
		INSERT INTO api_logs (route, user_id, status_code, duration_ms, provider_id, model, tokens_in, tokens_out, cost_credits, error_message, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), now())`,
		entry.Route, entry.UserID, entry.StatusCode, entry.Duration.Milliseconds(),
		string(entry.ProviderID), entry.Model, entry.TokensIn, entry.TokensOut,
		entry.CostInCredits, entry.ErrorMessage,
	)
	if err != nil {
		r.logger.Warn("failed to record api log entry", "route", entry.Route, "error", err)
	}
}
