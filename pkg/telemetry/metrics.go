package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/dennisonbertram/contextvault/pkg/store"
)

// ring is a fixed-capacity ring buffer of the last N latency samples for
// one operation, matching SPEC_FULL.md §4.8's "ring of last 1000 samples
// per operation" tracker.
type ring struct {
	samples []float64
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]float64, capacity)}
}

func (r *ring) add(v float64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []float64 {
	if !r.full {
		out := make([]float64, r.next)
		copy(out, r.samples[:r.next])
		return out
	}
	out := make([]float64, len(r.samples))
	copy(out, r.samples)
	return out
}

// Percentiles reports the p50/p95/p99 latency for one operation.
type Percentiles struct {
	P50 float64
	P95 float64
	P99 float64
	N   int
}

// MetricRecorder is the sliding-window percentile tracker: Record feeds
// both the in-memory ring (read by Percentiles, no Store round trip) and a
// best-effort persisted sample (read by the retention pruner, so history
// older than the window is still bounded on disk).
type MetricRecorder struct {
	db       *store.DB
	capacity int

	mu    sync.Mutex
	rings map[string]*ring
}

// NewMetricRecorder returns a recorder with the given per-operation window
// size (1000 per SPEC_FULL.md §4.8).
func NewMetricRecorder(db *store.DB, windowSize int) *MetricRecorder {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &MetricRecorder{db: db, capacity: windowSize, rings: make(map[string]*ring)}
}

// Record appends one latency observation for operation.
func (m *MetricRecorder) Record(ctx context.Context, operation string, durationMs float64) {
	m.mu.Lock()
	r, ok := m.rings[operation]
	if !ok {
		r = newRing(m.capacity)
		m.rings[operation] = r
	}
	r.add(durationMs)
	m.mu.Unlock()

	if m.db != nil {
		if err := m.db.MetricSamples().Record(ctx, operation, durationMs); err != nil {
			slog.Warn("metric sample persist failed", "operation", operation, "error", err)
		}
	}
}

// Percentiles computes p50/p95/p99 over the current in-memory window for
// operation. Returns the zero value if no samples have been recorded yet.
func (m *MetricRecorder) Percentiles(operation string) Percentiles {
	m.mu.Lock()
	r, ok := m.rings[operation]
	m.mu.Unlock()
	if !ok {
		return Percentiles{}
	}

	samples := r.snapshot()
	if len(samples) == 0 {
		return Percentiles{}
	}
	sort.Float64s(samples)
	return Percentiles{
		P50: percentileOf(samples, 0.50),
		P95: percentileOf(samples, 0.95),
		P99: percentileOf(samples, 0.99),
		N:   len(samples),
	}
}

// percentileOf returns the value at fraction p (0..1) of sorted samples,
// using nearest-rank interpolation.
func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
