package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

// CreditLedger debits user balances inside a transaction. The balance row
// is locked for the duration of the debit so concurrent spends serialize.
type CreditLedger struct {
	pool *pgxpool.Pool
}

var _ ports.CreditLedger = (*CreditLedger)(nil)

func NewCreditLedger(pool *pgxpool.Pool) *CreditLedger {
	return &CreditLedger{pool: pool}
}

func (l *CreditLedger) GetBalance(ctx context.Context, userID string) (domain.CreditBalance, error) {
	var bal domain.CreditBalance
	err := l.pool.QueryRow(ctx,
		`SELECT total_credits, used_credits, plan FROM user_credits WHERE user_id = $1`,
		userID,
	).Scan(&bal.Total, &bal.Used, &bal.Plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CreditBalance{}, nil
	}
	if err != nil {
		return domain.CreditBalance{}, fmt.Errorf("failed to load credit balance: %w", err)
	}
	bal.Available = bal.Total - bal.Used
	return bal, nil
}

func (l *CreditLedger) Debit(ctx context.Context, userID string, req domain.DebitRequest) (domain.DebitReceipt, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.DebitReceipt{}, fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var total, used float64
	err = tx.QueryRow(ctx,
		`SELECT total_credits, used_credits FROM user_credits WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&total, &used)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DebitReceipt{}, domain.ErrInsufficientCredits
	}
	if err != nil {
		return domain.DebitReceipt{}, fmt.Errorf("failed to lock credit balance: %w", err)
	}

	if total-used < req.Amount {
		return domain.DebitReceipt{}, domain.ErrInsufficientCredits
	}

	if _, err := tx.Exec(ctx,
		`UPDATE user_credits SET used_credits = used_credits + $2, updated_at = now() WHERE user_id = $1`,
		userID, req.Amount,
	); err != nil {
		return domain.DebitReceipt{}, fmt.Errorf("failed to apply debit: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (user_id, amount, reason, reference_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now())`,
		userID, -req.Amount, req.Reason, req.ReferenceID,
	); err != nil {
		return domain.DebitReceipt{}, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.DebitReceipt{}, fmt.Errorf("failed to commit debit: %w", err)
	}

	return domain.DebitReceipt{Remaining: total - used - req.Amount}, nil
}
