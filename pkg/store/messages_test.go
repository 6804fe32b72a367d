package store

import (
	"context"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func mustConversation(t *testing.T, db *DB, sessionKey string) string {
	t.Helper()
	ctx := context.Background()
	var id string
	err := db.WithTx(ctx, func(tx *Tx) error {
		conv, err := db.Conversations().GetOrCreateBySessionKey(ctx, tx, sessionKey)
		if err != nil {
			return err
		}
		id = conv.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func TestMessages_Insert_AssignsSequence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-b")

	var first, second *models.Message
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		first, err = db.Messages().Insert(ctx, tx, InsertInput{
			ConversationID:      convID,
			Role:                models.RoleUser,
			Content:             "hello",
			SanitizationVersion: 1,
		})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Sequence)
	require.True(t, first.PreSanitized)
	require.False(t, first.AIValidated)

	err = db.WithTx(ctx, func(tx *Tx) error {
		var err error
		second, err = db.Messages().Insert(ctx, tx, InsertInput{
			ConversationID:      convID,
			Role:                models.RoleAssistant,
			Content:             "hi there",
			SanitizationVersion: 1,
		})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, second.Sequence)

	msgs, err := db.Messages().ListByConversation(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
	require.Equal(t, second.ID, msgs[1].ID)
}

func TestMessages_Insert_RejectsBadRole(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-c")

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Messages().Insert(ctx, tx, InsertInput{
			ConversationID:      convID,
			Role:                "system",
			Content:             "hello",
			SanitizationVersion: 1,
		})
		return err
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestMessages_AllValidated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-d")

	var msg *models.Message
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		msg, err = db.Messages().Insert(ctx, tx, InsertInput{
			ConversationID:      convID,
			Role:                models.RoleUser,
			Content:             "hello",
			SanitizationVersion: 1,
		})
		return err
	})
	require.NoError(t, err)

	ok, err := db.Messages().AllValidated(ctx, convID)
	require.NoError(t, err)
	require.False(t, ok)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return db.Messages().ApplyAIValidation(ctx, tx, msg.ID, "hello", "[]")
	})
	require.NoError(t, err)

	ok, err = db.Messages().AllValidated(ctx, convID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, got.AIValidated)
}

func TestMessages_ApplyAIValidation_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		return db.Messages().ApplyAIValidation(ctx, tx, "missing", "x", "[]")
	})
	require.ErrorIs(t, err, ErrNotFound)
}
