package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
)

// Writer accumulates LogEntry rows in memory and flushes them to the Store
// in batches on a fixed tick, modeled on the StreamingBuffer pattern from
// the pack's kandev streaming_buffer.go: accumulate, flush periodically,
// and flush once more on graceful Stop so nothing queued is lost.
type Writer struct {
	db            *store.DB
	flushInterval time.Duration

	mu      sync.Mutex
	pending []models.LogEntry

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewWriter returns a Writer that flushes into db every flushInterval.
// Call Start to begin the background flush loop and Stop to drain it.
func NewWriter(db *store.DB, flushInterval time.Duration) *Writer {
	return &Writer{
		db:            db,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Enqueue buffers one entry for the next flush. Never blocks on the Store.
func (w *Writer) Enqueue(entry models.LogEntry) {
	w.mu.Lock()
	w.pending = append(w.pending, entry)
	w.mu.Unlock()
}

// Start runs the flush loop in a goroutine until Stop is called.
func (w *Writer) Start() {
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.flush()
			case <-w.stopCh:
				w.flush()
				return
			}
		}
	}()
}

// Stop signals the flush loop to perform one final flush and exit, then
// waits for it to finish.
func (w *Writer) Stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Writer) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.db.TelemetryLogs().AppendBatch(ctx, batch); err != nil {
		slog.Error("telemetry writer flush failed", "count", len(batch), "error", err)
	}
}
