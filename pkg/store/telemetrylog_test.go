package store

import (
	"context"
	"testing"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestTelemetryLogs_AppendBatchAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries := []models.LogEntry{
		{Level: "info", EventName: "job_claimed", CorrelationID: "corr-1", Metadata: "{}"},
		{Level: "warn", EventName: "job_claim_stale", CorrelationID: "corr-1", Metadata: "{}"},
		{Level: "info", EventName: "job_claimed", CorrelationID: "corr-2", Metadata: "{}"},
	}
	require.NoError(t, db.TelemetryLogs().AppendBatch(ctx, entries))

	rows, err := db.TelemetryLogs().ListByCorrelationID(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "job_claimed", rows[0].EventName)
	require.Equal(t, "job_claim_stale", rows[1].EventName)
}

func TestTelemetryLogs_PruneOlderThan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := models.LogEntry{Level: "info", EventName: "old", CorrelationID: "c", Metadata: "{}", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := models.LogEntry{Level: "info", EventName: "fresh", CorrelationID: "c", Metadata: "{}", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.TelemetryLogs().AppendBatch(ctx, []models.LogEntry{old, fresh}))

	n, err := db.TelemetryLogs().PruneOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err := db.TelemetryLogs().ListByCorrelationID(ctx, "c")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "fresh", rows[0].EventName)
}

func TestMetricSamples_RecordAndRecentByOperation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.MetricSamples().Record(ctx, "hook_write", 12.5))
	require.NoError(t, db.MetricSamples().Record(ctx, "hook_write", 34.0))
	require.NoError(t, db.MetricSamples().Record(ctx, "ai_validate", 900.0))

	rows, err := db.MetricSamples().RecentByOperation(ctx, "hook_write", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// newest first
	require.Equal(t, 34.0, rows[0].DurationMs)
}
