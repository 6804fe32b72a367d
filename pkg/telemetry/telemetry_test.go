package telemetry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	db, err := store.Open(context.Background(), store.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLogger_DropsUnlistedFieldsKeepsAllowed(t *testing.T) {
	db := newTestDB(t)
	writer := NewWriter(db, time.Hour) // long interval; flush manually
	logger := New(writer)
	ctx := context.Background()

	logger.Info(ctx, "hook_completed", map[string]any{
		"duration_ms": 42,
		"secret":      "should be dropped",
	})

	writer.flush()

	rows, err := db.TelemetryLogs().ListByCorrelationID(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[0].Metadata), &meta))
	require.Contains(t, meta, "duration_ms")
	require.NotContains(t, meta, "secret")
}

func TestLogger_MissingRequiredFieldEmitsSchemaViolation(t *testing.T) {
	db := newTestDB(t)
	writer := NewWriter(db, time.Hour)
	logger := New(writer)
	ctx := context.Background()

	logger.Info(ctx, "hook_completed", map[string]any{}) // missing duration_ms
	writer.flush()

	rows, err := db.TelemetryLogs().ListByCorrelationID(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "log_schema_violation", rows[0].EventName)
}

func TestCorrelation_PropagatesThroughContext(t *testing.T) {
	db := newTestDB(t)
	writer := NewWriter(db, time.Hour)
	logger := New(writer)

	ctx, corrID := WithCorrelation(context.Background(), idgen.New)
	require.NotEmpty(t, corrID)
	require.Equal(t, corrID, CorrelationID(ctx))

	logger.Info(ctx, "job_claimed", map[string]any{"job_type": "extract_learning", "job_id": "j1"})
	writer.flush()

	rows, err := db.TelemetryLogs().ListByCorrelationID(context.Background(), corrID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMetricRecorder_Percentiles(t *testing.T) {
	db := newTestDB(t)
	rec := NewMetricRecorder(db, 1000)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		rec.Record(ctx, "hook_write", float64(i))
	}

	p := rec.Percentiles("hook_write")
	require.Equal(t, 100, p.N)
	require.InDelta(t, 50, p.P50, 2)
	require.InDelta(t, 95, p.P95, 2)
	require.InDelta(t, 99, p.P99, 2)
}

func TestMetricRecorder_UnknownOperationReturnsZero(t *testing.T) {
	db := newTestDB(t)
	rec := NewMetricRecorder(db, 1000)
	require.Equal(t, Percentiles{}, rec.Percentiles("never_recorded"))
}

func TestPruner_DeletesOldRowsOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := models.LogEntry{Level: "info", EventName: "old", Metadata: "{}", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := models.LogEntry{Level: "info", EventName: "fresh", Metadata: "{}", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.TelemetryLogs().AppendBatch(ctx, []models.LogEntry{old, fresh}))

	pruner := NewPruner(db, 24*time.Hour, 10000)
	result, err := pruner.Run(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.LogsDeleted)
}

func TestRedactForDisplay(t *testing.T) {
	require.Equal(t, ContentPlaceholder, RedactForDisplay("hello", false, false))
	require.Equal(t, ContentPlaceholder, RedactForDisplay("hello", true, false))
	require.Equal(t, "hello", RedactForDisplay("hello", true, true))
}
