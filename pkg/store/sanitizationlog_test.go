package store

import (
	"context"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestSanitizationLogs_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	convID := mustConversation(t, db, "session-log")

	var msg *models.Message
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		msg, err = db.Messages().Insert(ctx, tx, InsertInput{
			ConversationID:      convID,
			Role:                models.RoleUser,
			Content:             "contact me at [EMAIL_REDACTED]",
			SanitizationVersion: 1,
		})
		if err != nil {
			return err
		}
		_, err = db.SanitizationLogs().Append(ctx, tx, msg.ID, models.StagePreSanitization, `[{"category":"email","placeholder":"[EMAIL_REDACTED]"}]`)
		return err
	})
	require.NoError(t, err)

	logs, err := db.SanitizationLogs().ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, models.StagePreSanitization, logs[0].Stage)
}
