package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/budget"
	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// Worker is a single queue worker polling and processing jobs of one
// registered type, generalized from the teacher's Worker (which polled
// one hard-coded session kind) to dispatch through a registered Handler.
type Worker struct {
	id       string
	queue    *Queue
	reg      Registration
	pollBase time.Duration
	jitter   time.Duration
	logger   *telemetry.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	jobsFailed    int
	lastActivity  time.Time
}

func newWorker(id string, q *Queue, reg Registration, pollBase, jitter time.Duration, logger *telemetry.Logger) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		reg:          reg,
		pollBase:     pollBase,
		jitter:       jitter,
		logger:       logger,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current job, if any,
// to finish. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		JobType:       string(w.reg.Type),
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		JobsFailed:    w.jobsFailed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				if w.logger != nil {
					w.logger.Error(ctx, "worker_poll_error", map[string]any{
						"worker_id": w.id,
						"job_type":  string(w.reg.Type),
						"error":     err.Error(),
					})
				}
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.jitter <= 0 {
		return w.pollBase
	}
	offset := time.Duration(rand.Int64N(int64(2 * w.jitter)))
	return w.pollBase - w.jitter + offset
}

// pollAndProcess claims one job of the worker's registered type and runs
// its handler to completion, updating the job's terminal state.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.queue.Claim(ctx, w.reg.Type, w.reg.LeaseDuration)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNoJobsAvailable
	}

	// Bind a fresh correlation id to every claim, the worker-side half of
	// SPEC_FULL.md §9's explicit-context replacement for the teacher's
	// implicit ambient correlation storage; the hook binds its own at the
	// top of Handle, so every log emitted anywhere in the system traces
	// back to exactly one correlated unit of work.
	ctx, _ = telemetry.WithCorrelation(ctx, idgen.New)
	ctx, _ = telemetry.WithSpan(ctx, idgen.New)
	// logCtx carries the same correlation/span ids into logging calls made
	// after the handler returns, without inheriting ctx's cancellation -
	// a shutdown in flight must not stop the terminal state transition or
	// its log line from being written.
	logCtx := telemetry.DetachedCopy(ctx)

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	if w.logger != nil {
		w.logger.Info(ctx, "job_claimed", map[string]any{
			"job_type": string(job.Type),
			"job_id":   job.ID,
		})
	}

	result, handlerErr := w.runHandler(ctx, job)

	if handlerErr != nil {
		w.mu.Lock()
		w.jobsFailed++
		w.mu.Unlock()
		if w.logger != nil {
			w.logger.Warn(logCtx, "job_failed", map[string]any{
				"job_type": string(job.Type),
				"job_id":   job.ID,
				"attempts": job.Attempts + 1,
				"error":    handlerErr.Error(),
			})
		}
		if errors.Is(handlerErr, budget.ErrBudgetExceeded) {
			return w.queue.FailBudgetExceeded(logCtx, job.ID)
		}
		if isNonRetriable(handlerErr) {
			return w.queue.DeadLetter(logCtx, job.ID, handlerErr.Error())
		}
		return w.queue.Fail(logCtx, job.ID, handlerErr.Error(), job.Attempts)
	}

	if err := w.queue.Complete(logCtx, job.ID, result); err != nil {
		return err
	}
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Info(logCtx, "job_completed", map[string]any{
			"job_type": string(job.Type),
			"job_id":   job.ID,
		})
	}
	return nil
}

// runHandler invokes the registered Handler with panic recovery, so a
// handler bug fails the job instead of crashing the whole worker process,
// per SPEC_FULL.md §4.6 ("panics/exceptions are caught and mapped to
// fail").
func (w *Worker) runHandler(ctx context.Context, job *models.Job) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return w.reg.Handler(ctx, job)
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
