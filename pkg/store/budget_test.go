package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBudget_GetOrInit_ReserveReconcile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		ledger, err := db.Budget().GetOrInit(ctx, tx, 1000, 20000, 500)
		require.NoError(t, err)
		require.Equal(t, int64(1000), ledger.DailyLimitCents)
		require.Equal(t, int64(0), ledger.CurrentDailySpendCents)
		return nil
	})
	require.NoError(t, err)

	// a second init call is a no-op returning the existing row, not
	// re-initializing the counters.
	err = db.WithTx(ctx, func(tx *Tx) error {
		ledger, err := db.Budget().GetOrInit(ctx, tx, 9999, 9999, 9999)
		require.NoError(t, err)
		require.Equal(t, int64(1000), ledger.DailyLimitCents)
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		ledger, err := db.Budget().Reserve(ctx, tx, 150)
		require.NoError(t, err)
		require.Equal(t, int64(150), ledger.CurrentDailySpendCents)
		require.Equal(t, int64(150), ledger.CurrentMonthlySpendCents)
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return db.Budget().Reconcile(ctx, tx, -50)
	})
	require.NoError(t, err)

	ledger, err := db.Budget().Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), ledger.CurrentDailySpendCents)
	require.Equal(t, int64(100), ledger.CurrentMonthlySpendCents)
}

func TestBudget_Get_NotFoundBeforeInit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Budget().Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApiCalls_ReserveSettleIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var callID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		call, err := db.ApiCalls().Reserve(ctx, tx, "validate-m1", "ai_validate", "claude-3", 200, "corr-1")
		if err != nil {
			return err
		}
		callID = call.ID
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		existing, err := db.ApiCalls().FindByIdempotencyKey(ctx, tx, "validate-m1")
		require.NoError(t, err)
		require.NotNil(t, existing)
		require.Equal(t, callID, existing.ID)
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return db.ApiCalls().Settle(ctx, tx, callID, 100, 50, 180)
	})
	require.NoError(t, err)

	total, err := db.ApiCalls().SumCostCentsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(180), total)
}
