package store

import (
	"context"
	"strings"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestLearnings_InsertAndListByCategory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-learn")

	content := strings.Repeat("retry idempotent writes behind a deterministic key. ", 3)
	require.GreaterOrEqual(t, len(content), 100)

	var learningID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		learning, err := db.Learnings().Insert(ctx, tx, LearningInsertInput{
			Category:             models.LearningPattern,
			Title:                "idempotent retries",
			Content:               content,
			Tags:                  []string{"reliability", "queues"},
			Confidence:            0.9,
			SourceConversationID: convID,
			SanitizerVersion:     1,
			ExtractorVersion:     1,
			Embedding:            []float64{1, 0, 0},
		})
		if err != nil {
			return err
		}
		learningID = learning.ID
		return nil
	})
	require.NoError(t, err)

	got, err := db.Learnings().Get(ctx, learningID)
	require.NoError(t, err)
	require.Equal(t, "idempotent retries", got.Title)

	list, err := db.Learnings().ListByCategory(ctx, models.LearningPattern)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestLearnings_Insert_RejectsShortContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-learn-2")

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Learnings().Insert(ctx, tx, LearningInsertInput{
			Category:             models.LearningPattern,
			Title:                "too short",
			Content:               "too short",
			Confidence:            0.5,
			SourceConversationID: convID,
		})
		return err
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestLearnings_MostSimilar(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-learn-3")
	content := strings.Repeat("use structured logging with a correlation id across async boundaries. ", 2)

	var closeID, farID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		near, err := db.Learnings().Insert(ctx, tx, LearningInsertInput{
			Category:             models.LearningBestPractice,
			Title:                "near",
			Content:               content,
			Confidence:            0.8,
			SourceConversationID: convID,
			Embedding:            []float64{1, 0, 0},
		})
		if err != nil {
			return err
		}
		closeID = near.ID

		far, err := db.Learnings().Insert(ctx, tx, LearningInsertInput{
			Category:             models.LearningBestPractice,
			Title:                "far",
			Content:               content,
			Confidence:            0.8,
			SourceConversationID: convID,
			Embedding:            []float64{0, 1, 0},
		})
		if err != nil {
			return err
		}
		farID = far.ID
		return nil
	})
	require.NoError(t, err)
	require.NotEqual(t, closeID, farID)

	bestID, score, err := db.Learnings().MostSimilar(ctx, []float64{0.9, 0.1, 0})
	require.NoError(t, err)
	require.Equal(t, closeID, bestID)
	require.Greater(t, score, 0.5)
}
