// Package queue is the durable, lease-based, at-least-once Job Queue and
// the Worker Pool that drains it, grounded directly in the teacher's
// pkg/queue package: claimNextSession's transaction-wrapped
// "SELECT ... FOR UPDATE SKIP LOCKED" becomes Claim's SQLite equivalent
// (single-writer WAL serialization instead of a row lock), and
// reap_expired_leases mirrors the teacher's runOrphanDetection sweep.
// Unlike the teacher's single hard-coded SessionExecutor, this queue
// dispatches by registered job type, so one pool drives every job type the
// core needs (ai_sanitization_validation, extract_learning,
// publish_learning) instead of one fixed kind of work.
package queue

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
)

// budgetExceededError is the fixed error string SPEC_FULL.md §4.7 requires
// a budget-gated job to be stored with on the degradation path, regardless
// of the underlying reservation error's actual text.
const budgetExceededError = "budget"

// Queue is the thin transactional wrapper around store.Jobs: it owns
// backoff policy and idempotent enqueue/claim/complete/fail, leaving the
// row-level state machine itself to the Store.
type Queue struct {
	db *store.DB

	backoffBase time.Duration
	backoffCap  time.Duration
}

// New returns a Queue backed by db, with the backoff curve from
// SPEC_FULL.md §4.5 (base=1s, cap=60s, jitter in [0,1s)).
func New(db *store.DB) *Queue {
	return &Queue{db: db, backoffBase: time.Second, backoffCap: 60 * time.Second}
}

// EnqueueOpts mirrors store.EnqueueInput with queue-level defaults applied
// by the caller's choice rather than silently by the Store.
type EnqueueOpts struct {
	Priority       int
	ScheduledAt    time.Time
	IdempotencyKey string
	MaxAttempts    int
}

// Enqueue inserts a new job of jobType (or returns the existing job
// unchanged if opts.IdempotencyKey collides with one already queued).
func (q *Queue) Enqueue(ctx context.Context, tx *store.Tx, jobType models.JobType, payloadJSON string, opts EnqueueOpts) (*models.Job, error) {
	return q.db.Jobs().Enqueue(ctx, tx, store.EnqueueInput{
		Type:           jobType,
		Payload:        payloadJSON,
		Priority:       opts.Priority,
		ScheduledAt:    opts.ScheduledAt,
		IdempotencyKey: opts.IdempotencyKey,
		MaxAttempts:    opts.MaxAttempts,
	})
}

// Claim reaps any expired leases for jobType, then atomically claims the
// oldest eligible queued job, or returns nil if none is available. Both
// steps run in one transaction, so a lease that just expired is
// immediately reclaimable.
func (q *Queue) Claim(ctx context.Context, jobType models.JobType, leaseDuration time.Duration) (*models.Job, error) {
	var job *models.Job
	err := q.db.WithTx(ctx, func(tx *store.Tx) error {
		now := time.Now().UTC()
		if _, err := q.db.Jobs().ReapExpiredLeases(ctx, tx, now); err != nil {
			return err
		}
		claimed, err := q.db.Jobs().Claim(ctx, tx, jobType, leaseDuration, now)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete transitions a claimed job to completed.
func (q *Queue) Complete(ctx context.Context, jobID string, resultJSON string) error {
	return q.db.WithTx(ctx, func(tx *store.Tx) error {
		return q.db.Jobs().Complete(ctx, tx, jobID, resultJSON)
	})
}

// Fail transitions a claimed job back to queued with backoff, or to
// dead_letter if its attempt budget is exhausted. attempts is the job's
// attempt count BEFORE this failure, used to size the backoff delay.
func (q *Queue) Fail(ctx context.Context, jobID string, errMsg string, attempts int) error {
	backoff := q.Backoff(attempts)
	return q.db.WithTx(ctx, func(tx *store.Tx) error {
		return q.db.Jobs().Fail(ctx, tx, jobID, errMsg, backoff)
	})
}

// FailBudgetExceeded transitions a claimed job back to queued under the
// §4.7 budget-degradation policy: the stored error is the fixed string
// "budget" rather than the reservation error's own text, and the retry is
// scheduled to the next UTC day boundary instead of the normal exponential
// backoff, since budget state cannot recover within a sub-minute retry
// window the way a transient oracle failure can.
func (q *Queue) FailBudgetExceeded(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	backoff := nextUTCDayBoundary(now).Sub(now)
	return q.db.WithTx(ctx, func(tx *store.Tx) error {
		return q.db.Jobs().Fail(ctx, tx, jobID, budgetExceededError, backoff)
	})
}

// nextUTCDayBoundary returns the next UTC midnight strictly after now.
func nextUTCDayBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// DeadLetter transitions a claimed job straight to dead_letter, bypassing
// the normal attempts-remaining check, for a Handler error wrapped in
// NonRetriable.
func (q *Queue) DeadLetter(ctx context.Context, jobID string, errMsg string) error {
	return q.db.WithTx(ctx, func(tx *store.Tx) error {
		return q.db.Jobs().DeadLetter(ctx, tx, jobID, errMsg)
	})
}

// Backoff computes min(base*2^attempts, cap) + jitter, per SPEC_FULL.md
// §4.5.
func (q *Queue) Backoff(attempts int) time.Duration {
	delay := q.backoffBase
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= q.backoffCap {
			delay = q.backoffCap
			break
		}
	}
	jitter := time.Duration(rand.Int64N(int64(time.Second)))
	return delay + jitter
}

// CountByStatus reports the number of jobs currently in a given status,
// the queue-depth figure telemetry/health checks surface.
func (q *Queue) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	return q.db.Jobs().CountByStatus(ctx, status)
}

// CountByTypeAndStatus reports the number of jobs of jobType currently in
// status, the per-type queue-depth figure WorkerPool.Health surfaces.
func (q *Queue) CountByTypeAndStatus(ctx context.Context, jobType models.JobType, status models.JobStatus) (int, error) {
	return q.db.Jobs().CountByTypeAndStatus(ctx, jobType, status)
}

// Get fetches a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	return q.db.Jobs().Get(ctx, id)
}
