package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/config"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// WorkerPool manages a pool of queue workers spanning every registered job
// type, generalized from the teacher's WorkerPool (which spawned workers
// for one hard-coded session kind) into a multi-type dispatcher.
type WorkerPool struct {
	hostID string
	queue  *Queue
	cfg    *config.QueueConfig
	logger *telemetry.Logger

	registrations []Registration
	workers       []*Worker

	mu      sync.RWMutex
	started bool
}

// NewWorkerPool returns an empty pool. Register job handlers with
// Register before calling Start.
func NewWorkerPool(hostID string, q *Queue, cfg *config.QueueConfig, logger *telemetry.Logger) *WorkerPool {
	return &WorkerPool{hostID: hostID, queue: q, cfg: cfg, logger: logger}
}

// Register binds handler to jobType, run by cfg.WorkerCount workers each
// holding a lease of leaseDuration. Must be called before Start.
func (p *WorkerPool) Register(jobType models.JobType, handler Handler, leaseDuration time.Duration) {
	if leaseDuration <= 0 {
		leaseDuration = p.cfg.LeaseDuration
	}
	p.registrations = append(p.registrations, Registration{
		Type:          jobType,
		Handler:       handler,
		Concurrency:   p.cfg.WorkerCount,
		LeaseDuration: leaseDuration,
	})
}

// Start spawns worker goroutines for every registration. Safe to call
// once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for _, reg := range p.registrations {
		for i := 0; i < reg.Concurrency; i++ {
			id := fmt.Sprintf("%s-%s-%d", p.hostID, reg.Type, i)
			w := newWorker(id, p.queue, reg, p.cfg.PollInterval, p.cfg.PollIntervalJitter, p.logger)
			p.workers = append(p.workers, w)
			w.Start(ctx)
		}
	}
}

// Stop signals every worker to stop and waits for in-flight handlers to
// finish, up to the pool's configured shutdown grace period. A worker
// still running past the grace period is abandoned; its job's lease
// expires naturally and another worker reclaims it.
func (p *WorkerPool) Stop() {
	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		if p.logger != nil {
			p.logger.Warn(context.Background(), "worker_pool_shutdown_grace_exceeded", map[string]any{
				"grace_seconds": p.cfg.ShutdownGrace.Seconds(),
			})
		}
	}
}

// Health reports the health of every worker and the queue depth per
// registered job type.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	p.mu.RLock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	regs := make([]Registration, len(p.registrations))
	copy(regs, p.registrations)
	p.mu.RUnlock()

	workerStats := make([]WorkerHealth, len(workers))
	activeWorkers := 0
	for i, w := range workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	queueDepth := make(map[string]int)
	dbHealthy := true
	var dbErr string
	for _, reg := range regs {
		n, err := p.queue.CountByTypeAndStatus(ctx, reg.Type, models.JobQueued)
		if err != nil {
			dbHealthy = false
			dbErr = err.Error()
			continue
		}
		queueDepth[string(reg.Type)] = n
	}

	return &PoolHealth{
		IsHealthy:     dbHealthy && len(workers) > 0,
		DBReachable:   dbHealthy,
		DBError:       dbErr,
		HostID:        p.hostID,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(workers),
		QueueDepth:    queueDepth,
		WorkerStats:   workerStats,
	}
}
