package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Jobs groups the low-level, storage-side Job Queue primitives. Policy
// (backoff curves, poll intervals, handler dispatch) lives in pkg/queue;
// this type only knows how to move rows between the states in the
// transition table below, atomically.
//
// Allowed transitions (SPEC_FULL.md §4.5):
//
//	queued -> in_progress
//	in_progress -> {completed, failed, queued}
//	failed -> {queued, dead_letter}
type Jobs struct{ db *DB }

// Jobs returns the Job sub-API.
func (d *DB) Jobs() *Jobs { return &Jobs{db: d} }

// EnqueueInput describes a new unit of deferred work.
type EnqueueInput struct {
	Type           models.JobType
	Payload        string // JSON
	Priority       int    // 1 (highest) .. 10 (lowest); 0 means "use default 5"
	ScheduledAt    time.Time
	IdempotencyKey string // empty means no dedup
	MaxAttempts    int    // 0 means "use default 3"
}

// Enqueue inserts a new job, or returns the existing job unchanged if
// in.IdempotencyKey collides with one already present — enqueuing the same
// (type, idempotency_key) pair twice is defined to be a no-op per
// SPEC_FULL.md §8.
func (j *Jobs) Enqueue(ctx context.Context, tx *Tx, in EnqueueInput) (*models.Job, error) {
	if in.Type == "" {
		return nil, NewValidationError("type", "required")
	}
	priority := in.Priority
	if priority == 0 {
		priority = 5
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}

	if in.IdempotencyKey != "" {
		existing, err := j.findByIdempotencyKey(ctx, tx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          idgen.New(),
		Type:        in.Type,
		Payload:     in.Payload,
		Status:      models.JobQueued,
		Priority:    priority,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var idempKey sql.NullString
	if in.IdempotencyKey != "" {
		idempKey = sql.NullString{String: in.IdempotencyKey, Valid: true}
		job.IdempotencyKey = &in.IdempotencyKey
	}

	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO job_queue
			(id, type, payload, status, priority, attempts, max_attempts,
			 idempotency_key, scheduled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Payload, job.Status, job.Priority,
		job.MaxAttempts, idempKey, job.ScheduledAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		// A UNIQUE violation here means a concurrent enqueue raced us;
		// the race loser defers to whichever row landed first.
		if existing, fetchErr := j.findByIdempotencyKey(ctx, tx, in.IdempotencyKey); fetchErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: insert job: %v", ErrUnavailable, err)
	}
	return job, nil
}

func (j *Jobs) findByIdempotencyKey(ctx context.Context, tx *Tx, key string) (*models.Job, error) {
	var job models.Job
	err := tx.tx.GetContext(ctx, &job, `SELECT * FROM job_queue WHERE idempotency_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup idempotency key: %v", ErrUnavailable, err)
	}
	return &job, nil
}

// ReapExpiredLeases returns every in_progress job whose lease has expired
// to queued, clearing the lease. Called immediately before every Claim.
func (j *Jobs) ReapExpiredLeases(ctx context.Context, tx *Tx, now time.Time) (int64, error) {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE job_queue
		 SET status = 'queued', lease_expires_at = NULL, updated_at = ?
		 WHERE status = 'in_progress' AND lease_expires_at < ?`,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("%w: reap expired leases: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Claim atomically selects the oldest queued job of the given type whose
// scheduled_at has passed, and marks it in_progress with a lease. Returns
// nil, nil if no job is available. SQLite has no row-level FOR UPDATE SKIP
// LOCKED; the WAL single-writer guarantee gives the same atomicity the
// teacher gets from Postgres's row lock, since the whole claim (select +
// update) runs inside one write transaction.
func (j *Jobs) Claim(ctx context.Context, tx *Tx, jobType models.JobType, leaseDuration time.Duration, now time.Time) (*models.Job, error) {
	var job models.Job
	err := tx.tx.GetContext(ctx, &job,
		`SELECT * FROM job_queue
		 WHERE type = ? AND status = 'queued' AND scheduled_at <= ?
		 ORDER BY priority ASC, created_at ASC
		 LIMIT 1`,
		jobType, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select claimable job: %v", ErrUnavailable, err)
	}

	leaseExpires := now.Add(leaseDuration)
	_, err = tx.tx.ExecContext(ctx,
		`UPDATE job_queue
		 SET status = 'in_progress', started_at = ?, lease_expires_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'queued'`,
		now, leaseExpires, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", ErrUnavailable, err)
	}

	job.Status = models.JobInProgress
	job.StartedAt = &now
	job.LeaseExpiresAt = &leaseExpires
	return &job, nil
}

// Complete transitions an in_progress job to completed, terminal.
func (j *Jobs) Complete(ctx context.Context, tx *Tx, jobID string, resultJSON string) error {
	now := time.Now().UTC()
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE job_queue
		 SET status = 'completed', result = ?, completed_at = ?, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'in_progress'`,
		resultJSON, now, now, jobID)
	return j.requireTransition(res, err, jobID)
}

// Fail transitions an in_progress job back to queued (with backoff) if
// attempts remain, or to dead_letter if this was the final attempt.
func (j *Jobs) Fail(ctx context.Context, tx *Tx, jobID string, errMsg string, backoff time.Duration) error {
	var job models.Job
	if err := tx.tx.GetContext(ctx, &job, `SELECT * FROM job_queue WHERE id = ?`, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: load job for fail: %v", ErrUnavailable, err)
	}
	if job.Status != models.JobInProgress {
		return fmt.Errorf("%w: job %s is %s, not in_progress", ErrInvalidTransition, jobID, job.Status)
	}

	now := time.Now().UTC()
	newAttempts := job.Attempts + 1

	var res sql.Result
	var err error
	if newAttempts >= job.MaxAttempts {
		res, err = tx.tx.ExecContext(ctx,
			`UPDATE job_queue
			 SET status = 'dead_letter', attempts = ?, error = ?, lease_expires_at = NULL, updated_at = ?
			 WHERE id = ? AND status = 'in_progress'`,
			newAttempts, errMsg, now, jobID)
	} else {
		res, err = tx.tx.ExecContext(ctx,
			`UPDATE job_queue
			 SET status = 'queued', attempts = ?, error = ?, scheduled_at = ?, lease_expires_at = NULL, updated_at = ?
			 WHERE id = ? AND status = 'in_progress'`,
			newAttempts, errMsg, now.Add(backoff), now, jobID)
	}
	return j.requireTransition(res, err, jobID)
}

// DeadLetter transitions an in_progress job directly to dead_letter
// regardless of remaining attempts, for the non-retriable error classes
// SPEC_FULL.md §7 maps straight to dead_letter (InputMalformed,
// PolicyViolation) instead of the normal backoff-and-retry path Fail
// implements.
func (j *Jobs) DeadLetter(ctx context.Context, tx *Tx, jobID string, errMsg string) error {
	now := time.Now().UTC()
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE job_queue
		 SET status = 'dead_letter', attempts = attempts + 1, error = ?, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'in_progress'`,
		errMsg, now, jobID)
	return j.requireTransition(res, err, jobID)
}

func (j *Jobs) requireTransition(res sql.Result, err error, jobID string) error {
	if err != nil {
		return fmt.Errorf("%w: job transition: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s not in expected state", ErrInvalidTransition, jobID)
	}
	return nil
}

// Get fetches a job by id.
func (j *Jobs) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := j.db.conn.GetContext(ctx, &job, `SELECT * FROM job_queue WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %v", ErrUnavailable, err)
	}
	return &job, nil
}

// CountByStatus returns the number of jobs currently in the given status,
// used for queue-depth telemetry.
func (j *Jobs) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var n int
	err := j.db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM job_queue WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("%w: count jobs: %v", ErrUnavailable, err)
	}
	return n, nil
}

// CountByTypeAndStatus returns the number of jobs of the given type
// currently in the given status, used for per-type queue-depth telemetry.
func (j *Jobs) CountByTypeAndStatus(ctx context.Context, jobType models.JobType, status models.JobStatus) (int, error) {
	var n int
	err := j.db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM job_queue WHERE type = ? AND status = ?`, jobType, status)
	if err != nil {
		return 0, fmt.Errorf("%w: count jobs by type: %v", ErrUnavailable, err)
	}
	return n, nil
}
