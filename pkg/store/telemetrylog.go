package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// TelemetryLogs groups LogEntry-entity operations: the Store-backed sink
// the Telemetry Core's buffered writer flushes into periodically.
type TelemetryLogs struct{ db *DB }

// TelemetryLogs returns the LogEntry sub-API.
func (d *DB) TelemetryLogs() *TelemetryLogs { return &TelemetryLogs{db: d} }

// AppendBatch writes every entry in a single transaction, the unit the
// buffered writer flushes on its 100ms tick or when its buffer fills,
// whichever comes first.
func (t *TelemetryLogs) AppendBatch(ctx context.Context, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return t.db.WithTx(ctx, func(tx *Tx) error {
		stmt, err := tx.tx.PrepareContext(ctx,
			`INSERT INTO logs (id, level, event_name, correlation_id, parent_span_id, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("%w: prepare log insert: %v", ErrUnavailable, err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if e.ID == "" {
				e.ID = idgen.New()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx, e.ID, e.Level, e.EventName, e.CorrelationID, e.ParentSpanID, e.Metadata, e.CreatedAt); err != nil {
				return fmt.Errorf("%w: insert log entry: %v", ErrUnavailable, err)
			}
		}
		return nil
	})
}

// ListByCorrelationID returns every log entry sharing a correlation id,
// oldest first — the trace of one request end to end.
func (t *TelemetryLogs) ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.LogEntry, error) {
	var rows []*models.LogEntry
	err := t.db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM logs WHERE correlation_id = ? ORDER BY created_at ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list logs by correlation: %v", ErrUnavailable, err)
	}
	return rows, nil
}

// PruneOlderThan deletes every log row older than cutoff, enforcing the
// retention window.
func (t *TelemetryLogs) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.conn.ExecContext(ctx, `DELETE FROM logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune logs: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return n, nil
}

// MetricSamples groups MetricSample-entity operations, the persisted
// backing store for the sliding-window percentile tracker.
type MetricSamples struct{ db *DB }

// MetricSamples returns the MetricSample sub-API.
func (d *DB) MetricSamples() *MetricSamples { return &MetricSamples{db: d} }

// Record appends one latency observation.
func (m *MetricSamples) Record(ctx context.Context, operation string, durationMs float64) error {
	_, err := m.db.conn.ExecContext(ctx,
		`INSERT INTO metric_samples (operation, duration_ms, created_at) VALUES (?, ?, ?)`,
		operation, durationMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: record metric sample: %v", ErrUnavailable, err)
	}
	return nil
}

// RecentByOperation returns the most recent n samples for operation, newest
// first, the window the percentile tracker recomputes over.
func (m *MetricSamples) RecentByOperation(ctx context.Context, operation string, n int) ([]*models.MetricSample, error) {
	var rows []*models.MetricSample
	err := m.db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM metric_samples WHERE operation = ? ORDER BY id DESC LIMIT ?`, operation, n)
	if err != nil {
		return nil, fmt.Errorf("%w: list metric samples: %v", ErrUnavailable, err)
	}
	return rows, nil
}

// PruneOlderThan deletes metric samples older than cutoff.
func (m *MetricSamples) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.db.conn.ExecContext(ctx, `DELETE FROM metric_samples WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune metric samples: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return n, nil
}
