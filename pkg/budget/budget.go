// Package budget is the Cost Governor: atomic cent-denominated
// reserve/reconcile around every LLM call, backed by the Store's
// transactions exactly as the teacher uses ent transactions around its
// claim-then-terminal-update shape in pkg/queue/worker.go, with no direct
// teacher analog for budget tracking itself.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/config"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// ErrBudgetExceeded is returned by Reserve when placing the reservation
// would push daily, monthly, or per-operation spend past its configured
// limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ModelPricing is one entry in the versioned pricing table: cents per
// million tokens, input and output priced separately.
type ModelPricing struct {
	InputCentsPerMillion  int64
	OutputCentsPerMillion int64
}

// PricingTable maps model name to its pricing entry. SPEC_FULL.md's Open
// Question 4 leaves the exact figures to deployment configuration; this
// ships a small built-in default explicitly marked as a placeholder — the
// core requires the shape, not the numbers.
type PricingTable map[string]ModelPricing

// DefaultPricingTable seeds a conservative placeholder table. Operators
// are expected to override this with their provider's published rates.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		"gpt-4o-mini": {InputCentsPerMillion: 15, OutputCentsPerMillion: 60},
		"gpt-4o":      {InputCentsPerMillion: 250, OutputCentsPerMillion: 1000},
	}
}

// CostCents computes ceil(tokens/1e6 * rate) per direction and sums them,
// per SPEC_FULL.md §4.7's pricing formula.
func (t PricingTable) CostCents(model string, inputTokens, outputTokens int) int64 {
	pricing, ok := t[model]
	if !ok {
		return 0
	}
	in := int64(math.Ceil(float64(inputTokens) / 1e6 * float64(pricing.InputCentsPerMillion)))
	out := int64(math.Ceil(float64(outputTokens) / 1e6 * float64(pricing.OutputCentsPerMillion)))
	return in + out
}

// Governor enforces configured spending limits around every LLM call.
type Governor struct {
	db      *store.DB
	cfg     *config.BudgetConfig
	pricing PricingTable
	logger  *telemetry.Logger

	warned map[string]bool // "daily:0.8" etc, reset on period roll
}

// New returns a Governor seeded with cfg's limits and pricing.
func New(db *store.DB, cfg *config.BudgetConfig, pricing PricingTable, logger *telemetry.Logger) *Governor {
	return &Governor{db: db, cfg: cfg, pricing: pricing, logger: logger, warned: make(map[string]bool)}
}

// Reservation is the outcome of a successful Reserve call.
type Reservation struct {
	ApiCallID          string
	EstimatedCostCents int64
}

// Reserve atomically checks the estimated cost of one call against the
// daily, monthly, and per-operation limits, and if it fits, increments
// both spend counters and inserts a reserved ApiCall row. A duplicate
// idempotencyKey returns the existing reservation without double-charging.
func (g *Governor) Reserve(ctx context.Context, tx *store.Tx, operation, model string, estimatedInputTokens, estimatedOutputTokens int, idempotencyKey, correlationID string) (*Reservation, error) {
	if existing, err := g.db.ApiCalls().FindByIdempotencyKey(ctx, tx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &Reservation{ApiCallID: existing.ID, EstimatedCostCents: existing.EstimatedCostCents}, nil
	}

	ledger, err := g.db.Budget().GetOrInit(ctx, tx, g.cfg.DailyLimitCents, g.cfg.MonthlyLimitCents, g.cfg.PerOperationLimitCents)
	if err != nil {
		return nil, err
	}

	estimate := g.pricing.CostCents(model, estimatedInputTokens, estimatedOutputTokens)

	if estimate > ledger.PerOperationLimitCents {
		return nil, fmt.Errorf("%w: operation %s estimate %dc exceeds per-operation limit %dc", ErrBudgetExceeded, operation, estimate, ledger.PerOperationLimitCents)
	}
	if ledger.CurrentDailySpendCents+estimate > ledger.DailyLimitCents {
		return nil, fmt.Errorf("%w: daily spend would reach %dc of %dc limit", ErrBudgetExceeded, ledger.CurrentDailySpendCents+estimate, ledger.DailyLimitCents)
	}
	if ledger.CurrentMonthlySpendCents+estimate > ledger.MonthlyLimitCents {
		return nil, fmt.Errorf("%w: monthly spend would reach %dc of %dc limit", ErrBudgetExceeded, ledger.CurrentMonthlySpendCents+estimate, ledger.MonthlyLimitCents)
	}

	updated, err := g.db.Budget().Reserve(ctx, tx, estimate)
	if err != nil {
		return nil, err
	}
	g.checkThresholds(ctx, updated)

	call, err := g.db.ApiCalls().Reserve(ctx, tx, idempotencyKey, operation, model, estimate, correlationID)
	if err != nil {
		return nil, err
	}
	return &Reservation{ApiCallID: call.ID, EstimatedCostCents: estimate}, nil
}

// Reconcile finalizes a reservation with the real token counts once the
// LLM call completes, adjusting both spend counters by the delta between
// actual and estimated cost (which may be negative, refunding the
// overestimate).
func (g *Governor) Reconcile(ctx context.Context, tx *store.Tx, reservation *Reservation, model string, actualInputTokens, actualOutputTokens int, success bool) error {
	if !success {
		return g.db.ApiCalls().Fail(ctx, tx, reservation.ApiCallID)
	}
	actual := g.pricing.CostCents(model, actualInputTokens, actualOutputTokens)
	if err := g.db.ApiCalls().Settle(ctx, tx, reservation.ApiCallID, actualInputTokens, actualOutputTokens, actual); err != nil {
		return err
	}
	delta := actual - reservation.EstimatedCostCents
	if delta == 0 {
		return nil
	}
	return g.db.Budget().Reconcile(ctx, tx, delta)
}

// ResetIfPeriodRolled zeros the daily counter if now has crossed into a new
// day since period_start, and the monthly counter if now has crossed into a
// new calendar month since last_reset_at. Called at worker startup and on
// a timer, per SPEC_FULL.md §4.7.
func (g *Governor) ResetIfPeriodRolled(ctx context.Context, now time.Time) error {
	return g.db.WithTx(ctx, func(tx *store.Tx) error {
		ledger, err := g.db.Budget().GetOrInit(ctx, tx, g.cfg.DailyLimitCents, g.cfg.MonthlyLimitCents, g.cfg.PerOperationLimitCents)
		if err != nil {
			return err
		}
		if !sameUTCDay(ledger.PeriodStart, now) {
			if err := g.db.Budget().ResetDaily(ctx, tx, now); err != nil {
				return err
			}
			g.warned = make(map[string]bool)
		}
		if !sameUTCMonth(ledger.LastResetAt, now) {
			if err := g.db.Budget().ResetMonthly(ctx, tx, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func sameUTCMonth(a, b time.Time) bool {
	ay, am, _ := a.UTC().Date()
	by, bm, _ := b.UTC().Date()
	return ay == by && am == bm
}

// checkThresholds emits one telemetry event per crossed warning threshold
// per period, per SPEC_FULL.md §4.7.
func (g *Governor) checkThresholds(ctx context.Context, ledger *models.BudgetLedger) {
	if g.logger == nil {
		return
	}
	g.checkOne(ctx, "daily", ledger.CurrentDailySpendCents, ledger.DailyLimitCents)
	g.checkOne(ctx, "monthly", ledger.CurrentMonthlySpendCents, ledger.MonthlyLimitCents)
}

func (g *Governor) checkOne(ctx context.Context, period string, spend, limit int64) {
	if limit <= 0 {
		return
	}
	frac := float64(spend) / float64(limit)
	for _, threshold := range g.cfg.WarningThresholds {
		key := fmt.Sprintf("%s:%.2f", period, threshold)
		if frac >= threshold && !g.warned[key] {
			g.warned[key] = true
			g.logger.Warn(ctx, "budget_threshold_crossed", map[string]any{
				"period":     period,
				"threshold":  threshold,
				"limit_type": period,
			})
		}
	}
}
