package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Budget groups BudgetLedger operations. The ledger is a singleton: exactly
// one row is expected to exist, created lazily on first use.
type Budget struct{ db *DB }

// Budget returns the BudgetLedger sub-API.
func (d *DB) Budget() *Budget { return &Budget{db: d} }

const budgetSingletonID = "budget-ledger"

// GetOrInit returns the singleton ledger row, creating it with the given
// limits if it does not yet exist.
func (b *Budget) GetOrInit(ctx context.Context, tx *Tx, dailyLimitCents, monthlyLimitCents, perOpLimitCents int64) (*models.BudgetLedger, error) {
	var ledger models.BudgetLedger
	err := tx.tx.GetContext(ctx, &ledger, `SELECT * FROM budget_ledger WHERE id = ?`, budgetSingletonID)
	switch {
	case err == nil:
		return &ledger, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, fmt.Errorf("%w: query budget ledger: %v", ErrUnavailable, err)
	}

	now := time.Now().UTC()
	ledger = models.BudgetLedger{
		ID:                       budgetSingletonID,
		DailyLimitCents:          dailyLimitCents,
		MonthlyLimitCents:        monthlyLimitCents,
		PerOperationLimitCents:   perOpLimitCents,
		CurrentDailySpendCents:   0,
		CurrentMonthlySpendCents: 0,
		PeriodStart:              now,
		LastResetAt:              now,
	}
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO budget_ledger
			(id, daily_limit_cents, monthly_limit_cents, per_operation_limit_cents,
			 current_daily_spend_cents, current_monthly_spend_cents, period_start, last_reset_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		ledger.ID, ledger.DailyLimitCents, ledger.MonthlyLimitCents, ledger.PerOperationLimitCents,
		ledger.PeriodStart, ledger.LastResetAt)
	if err != nil {
		return nil, fmt.Errorf("%w: init budget ledger: %v", ErrUnavailable, err)
	}
	return &ledger, nil
}

// Get returns the singleton ledger row outside of a transaction (read-only).
// Returns ErrNotFound if GetOrInit has never run.
func (b *Budget) Get(ctx context.Context) (*models.BudgetLedger, error) {
	var ledger models.BudgetLedger
	err := b.db.conn.GetContext(ctx, &ledger, `SELECT * FROM budget_ledger WHERE id = ?`, budgetSingletonID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get budget ledger: %v", ErrUnavailable, err)
	}
	return &ledger, nil
}

// Reserve atomically increments both spend counters by amountCents. The
// caller (pkg/budget) is responsible for first checking the reservation
// against the applicable limit — Reserve itself does not reject overspend,
// since the governor must be able to log and alert on breaches rather than
// silently swallow them.
func (b *Budget) Reserve(ctx context.Context, tx *Tx, amountCents int64) (*models.BudgetLedger, error) {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE budget_ledger
		 SET current_daily_spend_cents = current_daily_spend_cents + ?,
		     current_monthly_spend_cents = current_monthly_spend_cents + ?
		 WHERE id = ?`,
		amountCents, amountCents, budgetSingletonID)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve budget: %v", ErrUnavailable, err)
	}
	var ledger models.BudgetLedger
	if err := tx.tx.GetContext(ctx, &ledger, `SELECT * FROM budget_ledger WHERE id = ?`, budgetSingletonID); err != nil {
		return nil, fmt.Errorf("%w: reload budget ledger: %v", ErrUnavailable, err)
	}
	return &ledger, nil
}

// Reconcile adjusts both spend counters by deltaCents (typically negative,
// refunding the gap between an estimate reserved up front and the actual
// metered cost).
func (b *Budget) Reconcile(ctx context.Context, tx *Tx, deltaCents int64) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE budget_ledger
		 SET current_daily_spend_cents = current_daily_spend_cents + ?,
		     current_monthly_spend_cents = current_monthly_spend_cents + ?
		 WHERE id = ?`,
		deltaCents, deltaCents, budgetSingletonID)
	if err != nil {
		return fmt.Errorf("%w: reconcile budget: %v", ErrUnavailable, err)
	}
	return nil
}

// ResetDaily zeroes the daily counter and advances period_start; called once
// per day by the governor when it notices the period has rolled over.
func (b *Budget) ResetDaily(ctx context.Context, tx *Tx, now time.Time) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE budget_ledger
		 SET current_daily_spend_cents = 0, period_start = ?, last_reset_at = ?
		 WHERE id = ?`,
		now, now, budgetSingletonID)
	if err != nil {
		return fmt.Errorf("%w: reset daily budget: %v", ErrUnavailable, err)
	}
	return nil
}

// ResetMonthly zeroes the monthly counter, called on the first reconcile of
// a new calendar month.
func (b *Budget) ResetMonthly(ctx context.Context, tx *Tx, now time.Time) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE budget_ledger SET current_monthly_spend_cents = 0, last_reset_at = ? WHERE id = ?`,
		now, budgetSingletonID)
	if err != nil {
		return fmt.Errorf("%w: reset monthly budget: %v", ErrUnavailable, err)
	}
	return nil
}

// ApiCalls groups ApiCall-entity operations: the per-call ledger used for
// idempotent, exactly-once cost accounting.
type ApiCalls struct{ db *DB }

// ApiCalls returns the ApiCall sub-API.
func (d *DB) ApiCalls() *ApiCalls { return &ApiCalls{db: d} }

// FindByIdempotencyKey returns the existing call record for key, or nil if
// none exists — callers use this to detect retries of an already-billed
// operation before placing a second reservation.
func (a *ApiCalls) FindByIdempotencyKey(ctx context.Context, tx *Tx, key string) (*models.ApiCall, error) {
	var call models.ApiCall
	err := tx.tx.GetContext(ctx, &call, `SELECT * FROM api_call WHERE idempotency_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup api call: %v", ErrUnavailable, err)
	}
	return &call, nil
}

// Reserve inserts a new api_call row in reserved status with an estimated
// cost, ahead of making the real LLM request.
func (a *ApiCalls) Reserve(ctx context.Context, tx *Tx, idempotencyKey, operation, model string, estimatedCostCents int64, correlationID string) (*models.ApiCall, error) {
	call := &models.ApiCall{
		ID:                 idgen.New(),
		IdempotencyKey:     idempotencyKey,
		Operation:          operation,
		Model:              model,
		Status:             models.ApiCallReserved,
		EstimatedCostCents: estimatedCostCents,
		CorrelationID:      correlationID,
		CreatedAt:          time.Now().UTC(),
	}
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO api_call
			(id, idempotency_key, operation, model, status, input_tokens, output_tokens,
			 estimated_cost_cents, cost_cents, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, 0, ?, ?)`,
		call.ID, call.IdempotencyKey, call.Operation, call.Model, call.Status,
		call.EstimatedCostCents, call.CorrelationID, call.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve api call: %v", ErrUnavailable, err)
	}
	return call, nil
}

// Settle finalizes a reserved call with the real token counts and cost once
// the LLM request has completed.
func (a *ApiCalls) Settle(ctx context.Context, tx *Tx, callID string, inputTokens, outputTokens int, costCents int64) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE api_call
		 SET status = 'success', input_tokens = ?, output_tokens = ?, cost_cents = ?
		 WHERE id = ? AND status = 'reserved'`,
		inputTokens, outputTokens, costCents, callID)
	if err != nil {
		return fmt.Errorf("%w: settle api call: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: api call %s not in reserved state", ErrInvalidTransition, callID)
	}
	return nil
}

// Fail marks a reserved call as errored, with no cost settled.
func (a *ApiCalls) Fail(ctx context.Context, tx *Tx, callID string) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE api_call SET status = 'error' WHERE id = ? AND status = 'reserved'`, callID)
	if err != nil {
		return fmt.Errorf("%w: fail api call: %v", ErrUnavailable, err)
	}
	return nil
}

// SumCostCentsSince returns the total settled cost since the given time, a
// secondary check the governor can use to cross-validate the ledger
// counters against the ground-truth call log.
func (a *ApiCalls) SumCostCentsSince(ctx context.Context, since time.Time) (int64, error) {
	var sum int64
	err := a.db.conn.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM api_call WHERE status = 'success' AND created_at >= ?`,
		since)
	if err != nil {
		return 0, fmt.Errorf("%w: sum api call cost: %v", ErrUnavailable, err)
	}
	return sum, nil
}
