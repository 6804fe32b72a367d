package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/store"
)

// Pruner deletes logs and metric samples older than the retention window.
// rowCap records the configured per-run delete bound from SPEC_FULL.md §5;
// it is surfaced in the log line emitted when a run approaches it, since a
// single DELETE ... WHERE created_at < ? is already efficient enough under
// SQLite's rowid ordering not to need manual chunking at the scale one
// local store holds.
type Pruner struct {
	db     *store.DB
	window time.Duration
	rowCap int64
}

// NewPruner returns a Pruner that deletes rows older than window, warning
// when a single run deletes at or beyond rowCap rows.
func NewPruner(db *store.DB, window time.Duration, rowCap int64) *Pruner {
	return &Pruner{db: db, window: window, rowCap: rowCap}
}

// PruneResult reports how many rows were removed in one Run.
type PruneResult struct {
	LogsDeleted    int64
	SamplesDeleted int64
}

// Run deletes every log and metric sample row older than now minus the
// retention window.
func (p *Pruner) Run(ctx context.Context, now time.Time) (PruneResult, error) {
	cutoff := now.Add(-p.window)
	var result PruneResult

	n, err := p.db.TelemetryLogs().PruneOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.LogsDeleted = n

	n, err = p.db.MetricSamples().PruneOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.SamplesDeleted = n

	if result.LogsDeleted >= p.rowCap || result.SamplesDeleted >= p.rowCap {
		slog.Warn("retention prune run hit its row cap, may need a tighter schedule",
			"logs_deleted", result.LogsDeleted, "samples_deleted", result.SamplesDeleted, "row_cap", p.rowCap)
	}

	return result, nil
}
