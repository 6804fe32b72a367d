package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversations_GetOrCreateBySessionKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var firstID string
	err := db.WithTx(ctx, func(tx *Tx) error {
		conv, err := db.Conversations().GetOrCreateBySessionKey(ctx, tx, "session-a")
		require.NoError(t, err)
		firstID = conv.ID
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, firstID)

	// second call with the same session key returns the same row, not a
	// new one.
	err = db.WithTx(ctx, func(tx *Tx) error {
		conv, err := db.Conversations().GetOrCreateBySessionKey(ctx, tx, "session-a")
		require.NoError(t, err)
		require.Equal(t, firstID, conv.ID)
		return nil
	})
	require.NoError(t, err)

	conv, err := db.Conversations().Get(ctx, firstID)
	require.NoError(t, err)
	require.Equal(t, "session-a", conv.SessionKey)
}

func TestConversations_GetOrCreateBySessionKey_RequiresKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := db.Conversations().GetOrCreateBySessionKey(ctx, tx, "")
		return err
	})
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestConversations_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Conversations().Get(ctx, "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}
