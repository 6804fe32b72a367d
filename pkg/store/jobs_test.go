package store

import (
	"context"
	"testing"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestJobs_EnqueueClaimComplete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var jobID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		job, err := db.Jobs().Enqueue(ctx, tx, EnqueueInput{
			Type:    models.JobTypeAISanitizationValidation,
			Payload: `{"message_id":"m1"}`,
		})
		if err != nil {
			return err
		}
		jobID = job.ID
		require.Equal(t, 5, job.Priority)
		require.Equal(t, 3, job.MaxAttempts)
		require.Equal(t, models.JobQueued, job.Status)
		return nil
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	var claimed *models.Job
	err = db.WithTx(ctx, func(tx *Tx) error {
		var err error
		claimed, err = db.Jobs().Claim(ctx, tx, models.JobTypeAISanitizationValidation, 30*time.Second, now)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, jobID, claimed.ID)
	require.Equal(t, models.JobInProgress, claimed.Status)

	// A second claim attempt finds nothing else queued.
	err = db.WithTx(ctx, func(tx *Tx) error {
		none, err := db.Jobs().Claim(ctx, tx, models.JobTypeAISanitizationValidation, 30*time.Second, now)
		require.NoError(t, err)
		require.Nil(t, none)
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return db.Jobs().Complete(ctx, tx, jobID, `{"ok":true}`)
	})
	require.NoError(t, err)

	final, err := db.Jobs().Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, final.Status)
}

func TestJobs_Enqueue_IdempotencyKeyIsNoOp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var firstID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		job, err := db.Jobs().Enqueue(ctx, tx, EnqueueInput{
			Type:           models.JobTypeExtractLearning,
			Payload:        `{}`,
			IdempotencyKey: "learn-conv-1",
		})
		if err != nil {
			return err
		}
		firstID = job.ID
		return nil
	})
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *Tx) error {
		job, err := db.Jobs().Enqueue(ctx, tx, EnqueueInput{
			Type:           models.JobTypeExtractLearning,
			Payload:        `{}`,
			IdempotencyKey: "learn-conv-1",
		})
		if err != nil {
			return err
		}
		require.Equal(t, firstID, job.ID)
		return nil
	})
	require.NoError(t, err)

	n, err := db.Jobs().CountByStatus(ctx, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestJobs_Fail_RequeuesWithBackoffUntilDeadLetter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var jobID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		job, err := db.Jobs().Enqueue(ctx, tx, EnqueueInput{
			Type:        models.JobTypeAISanitizationValidation,
			Payload:     `{}`,
			MaxAttempts: 2,
		})
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	})
	require.NoError(t, err)

	now := time.Now().UTC()

	// attempt 1 fails, requeued
	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Jobs().Claim(ctx, tx, models.JobTypeAISanitizationValidation, 30*time.Second, now)
		require.NoError(t, err)
		return db.Jobs().Fail(ctx, tx, jobID, "boom", time.Second)
	})
	require.NoError(t, err)

	job, err := db.Jobs().Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobQueued, job.Status)
	require.Equal(t, 1, job.Attempts)

	// attempt 2 fails, exhausts max_attempts, dead-lettered
	later := now.Add(2 * time.Second)
	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Jobs().Claim(ctx, tx, models.JobTypeAISanitizationValidation, 30*time.Second, later)
		require.NoError(t, err)
		return db.Jobs().Fail(ctx, tx, jobID, "boom again", time.Second)
	})
	require.NoError(t, err)

	job, err = db.Jobs().Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobDeadLetter, job.Status)
	require.Equal(t, 2, job.Attempts)
}

func TestJobs_ReapExpiredLeases(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Jobs().Enqueue(ctx, tx, EnqueueInput{Type: models.JobTypeExtractLearning, Payload: `{}`})
		if err != nil {
			return err
		}
		_, err = db.Jobs().Claim(ctx, tx, models.JobTypeExtractLearning, time.Nanosecond, now)
		return err
	})
	require.NoError(t, err)

	later := now.Add(time.Second)
	err = db.WithTx(ctx, func(tx *Tx) error {
		n, err := db.Jobs().ReapExpiredLeases(ctx, tx, later)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	n, err := db.Jobs().CountByStatus(ctx, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
