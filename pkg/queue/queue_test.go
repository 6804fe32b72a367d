package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/budget"
	"github.com/dennisonbertram/contextvault/pkg/config"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := store.Open(context.Background(), store.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fastQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:        1,
		PollInterval:       10 * time.Millisecond,
		PollIntervalJitter: 2 * time.Millisecond,
		LeaseDuration:      time.Second,
		ShutdownGrace:      time.Second,
	}
}

func TestBackoff_GrowsExponentiallyAndCaps(t *testing.T) {
	q := New(newTestDB(t))

	d0 := q.Backoff(0)
	require.GreaterOrEqual(t, d0, time.Second)
	require.Less(t, d0, 2*time.Second)

	d3 := q.Backoff(3)
	require.GreaterOrEqual(t, d3, 8*time.Second)
	require.Less(t, d3, 9*time.Second)

	dHuge := q.Backoff(20)
	require.GreaterOrEqual(t, dHuge, 60*time.Second)
	require.Less(t, dHuge, 61*time.Second)
}

func TestWorkerPool_ClaimsAndCompletesJob(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	var enqueued *models.Job
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		enqueued, err = q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{"conversation_id":"c1"}`, EnqueueOpts{})
		return err
	}))

	handled := make(chan string, 1)
	handler := func(ctx context.Context, job *models.Job) (string, error) {
		handled <- job.ID
		return `{"learnings_extracted":0}`, nil
	}

	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeExtractLearning, handler, 0)
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case id := <-handled:
		require.Equal(t, enqueued.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	require.Eventually(t, func() bool {
		job, err := q.Get(ctx, enqueued.ID)
		return err == nil && job.Status == models.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_HandlerErrorRequeuesThenDeadLetters(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	var jobID string
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		job, err := q.Enqueue(ctx, tx, models.JobTypeAISanitizationValidation, `{}`, EnqueueOpts{MaxAttempts: 1})
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	}))

	handler := func(ctx context.Context, job *models.Job) (string, error) {
		return "", errors.New("oracle unavailable")
	}

	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeAISanitizationValidation, handler, 0)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		job, err := q.Get(ctx, jobID)
		return err == nil && job.Status == models.JobDeadLetter
	}, 2*time.Second, 10*time.Millisecond)

	job, err := q.Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.Error)
	require.Contains(t, *job.Error, "oracle unavailable")
}

func TestWorkerPool_Health_ReportsQueueDepthPerType(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{}`, EnqueueOpts{})
		return err
	}))

	blockHandler := make(chan struct{})
	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeExtractLearning, func(ctx context.Context, job *models.Job) (string, error) {
		<-blockHandler
		return "{}", nil
	}, 0)
	pool.Start(ctx)
	defer func() {
		close(blockHandler)
		pool.Stop()
	}()

	require.Eventually(t, func() bool {
		health := pool.Health(ctx)
		return health.ActiveWorkers == 1
	}, 2*time.Second, 10*time.Millisecond)

	health := pool.Health(ctx)
	require.True(t, health.IsHealthy)
	require.Equal(t, 1, health.TotalWorkers)
}

func TestWorkerPool_BindsFreshCorrelationIDPerClaim(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{}`, EnqueueOpts{})
		return err
	}))

	seen := make(chan string, 1)
	handler := func(ctx context.Context, job *models.Job) (string, error) {
		seen <- telemetry.CorrelationID(ctx)
		return "{}", nil
	}

	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeExtractLearning, handler, 0)
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case id := <-seen:
		require.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestWorkerPool_HandlerPanicFailsJobInsteadOfCrashing(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	var jobID string
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		job, err := q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{}`, EnqueueOpts{MaxAttempts: 3})
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	}))

	handler := func(ctx context.Context, job *models.Job) (string, error) {
		panic("handler bug: nil map write")
	}

	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeExtractLearning, handler, 0)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		job, err := q.Get(ctx, jobID)
		return err == nil && job.Status == models.JobQueued && job.Attempts == 1
	}, 2*time.Second, 10*time.Millisecond)

	job, err := q.Get(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	require.Contains(t, *job.Error, "handler panicked")
}

func TestWorkerPool_BudgetExceededSchedulesPastDayBoundary(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	var jobID string
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		job, err := q.Enqueue(ctx, tx, models.JobTypeAISanitizationValidation, `{}`, EnqueueOpts{MaxAttempts: 3})
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	}))

	before := time.Now().UTC()

	handler := func(ctx context.Context, job *models.Job) (string, error) {
		return "", budget.ErrBudgetExceeded
	}

	pool := NewWorkerPool("test-host", q, fastQueueConfig(), nil)
	pool.Register(models.JobTypeAISanitizationValidation, handler, 0)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		job, err := q.Get(ctx, jobID)
		return err == nil && job.Status == models.JobQueued && job.Attempts == 1
	}, 2*time.Second, 10*time.Millisecond)

	job, err := q.Get(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	require.Equal(t, "budget", *job.Error)
	require.True(t, job.ScheduledAt.After(before.Add(23*time.Hour)),
		"budget-exceeded job should be scheduled past the next day boundary, got %v", job.ScheduledAt)
}

func TestQueue_Enqueue_IdempotentAcrossCalls(t *testing.T) {
	db := newTestDB(t)
	q := New(db)
	ctx := context.Background()

	var first, second *models.Job
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		first, err = q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{}`, EnqueueOpts{IdempotencyKey: "learn-c1-m9"})
		return err
	}))
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		second, err = q.Enqueue(ctx, tx, models.JobTypeExtractLearning, `{}`, EnqueueOpts{IdempotencyKey: "learn-c1-m9"})
		return err
	}))
	require.Equal(t, first.ID, second.ID)

	n, err := q.CountByStatus(ctx, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
