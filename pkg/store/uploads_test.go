package store

import (
	"context"
	"strings"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func mustLearning(t *testing.T, db *DB, convID string) string {
	t.Helper()
	ctx := context.Background()
	content := strings.Repeat("prefer composition over inheritance when extending handlers. ", 2)

	var id string
	err := db.WithTx(ctx, func(tx *Tx) error {
		learning, err := db.Learnings().Insert(ctx, tx, LearningInsertInput{
			Category:             models.LearningPattern,
			Title:                "composition",
			Content:              content,
			Confidence:           0.8,
			SourceConversationID: convID,
		})
		if err != nil {
			return err
		}
		id = learning.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func TestUploads_RecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-upload")
	learningID := mustLearning(t, db, convID)

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Uploads().Record(ctx, tx, learningID, "bafy-content-address", "0xdeadbeef")
		return err
	})
	require.NoError(t, err)

	uploads, err := db.Uploads().ListByLearning(ctx, learningID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.Equal(t, "bafy-content-address", uploads[0].ContentAddress)
}

func TestUploads_Record_RequiresFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Uploads().Record(ctx, tx, "", "addr", "tx")
		return err
	})
	require.True(t, IsValidationError(err))
}
