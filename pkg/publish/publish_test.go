package publish

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "publish.db")
	db, err := store.Open(context.Background(), store.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedConversation inserts two assistant messages into a fresh
// conversation, optionally marking both as AI-validated, and returns the
// conversation id.
func seedConversation(t *testing.T, db *store.DB, validated bool) string {
	t.Helper()
	ctx := context.Background()
	var convID string
	var msgIDs []string
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		conv, err := db.Conversations().GetOrCreateBySessionKey(ctx, tx, "sess-pub-1")
		if err != nil {
			return err
		}
		convID = conv.ID
		for i := 0; i < 2; i++ {
			msg, err := db.Messages().Insert(ctx, tx, store.InsertInput{
				ConversationID:      conv.ID,
				Role:                models.RoleAssistant,
				Content:             "how to configure a webhook retry policy",
				SanitizationVersion: 1,
			})
			if err != nil {
				return err
			}
			msgIDs = append(msgIDs, msg.ID)
		}
		return nil
	}))
	if validated {
		for _, id := range msgIDs {
			require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
				return db.Messages().ApplyAIValidation(ctx, tx, id, "how to configure a webhook retry policy", "[]")
			}))
		}
	}
	return convID
}

func insertLearning(t *testing.T, db *store.DB, convID string, category models.LearningCategory, confidence float64) string {
	t.Helper()
	ctx := context.Background()
	var id string
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		l, err := db.Learnings().Insert(ctx, tx, store.LearningInsertInput{
			Category:              category,
			Title:                 "retry with exponential backoff",
			Content:                "When a webhook delivery fails, retry with exponential backoff and a capped jitter window rather than a fixed interval, so a downstream outage does not turn into a thundering herd once it recovers.",
			Confidence:            confidence,
			SourceConversationID:  convID,
			SanitizerVersion:      1,
			ExtractorVersion:      1,
		})
		if err != nil {
			return err
		}
		id = l.ID
		return nil
	}))
	return id
}

func giveConsent(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := db.Consents().Record(ctx, tx, store.ConsentInput{
			Version:      "v1",
			TextHash:     "deadbeef",
			ShareEnabled: true,
			Attribution:  models.AttributionAnonymous,
			AgeConfirmed: true,
		})
		return err
	}))
}

func TestHandler_Publish_NoConsent_IsPolicyViolation(t *testing.T) {
	db := newTestDB(t)
	convID := seedConversation(t, db, true)
	learningID := insertLearning(t, db, convID, models.LearningPattern, 0.9)

	h := New(db, &LocalPublisher{}, nil)
	_, err := h.Publish(context.Background(), learningID)
	require.ErrorIs(t, err, ErrPolicyViolation)
}

func TestHandler_Publish_Validated_Succeeds(t *testing.T) {
	db := newTestDB(t)
	giveConsent(t, db)
	convID := seedConversation(t, db, true)
	learningID := insertLearning(t, db, convID, models.LearningBugFix, 0.7)

	publisher := &LocalPublisher{}
	h := New(db, publisher, nil)
	up, err := h.Publish(context.Background(), learningID)
	require.NoError(t, err)
	require.NotEmpty(t, up.ContentAddress)
	require.Len(t, publisher.Calls, 1)
}

func TestHandler_Publish_Idempotent_NoDoubleCall(t *testing.T) {
	db := newTestDB(t)
	giveConsent(t, db)
	convID := seedConversation(t, db, true)
	learningID := insertLearning(t, db, convID, models.LearningPattern, 0.9)

	publisher := &LocalPublisher{}
	h := New(db, publisher, nil)
	_, err := h.Publish(context.Background(), learningID)
	require.NoError(t, err)

	up2, err := h.Publish(context.Background(), learningID)
	require.NoError(t, err)
	require.Len(t, publisher.Calls, 1, "second Publish must not re-call the publisher")
	require.NotEmpty(t, up2.ContentAddress)
}

func TestHandler_Publish_UnvalidatedNonWhitelistCategory_IsRetriable(t *testing.T) {
	db := newTestDB(t)
	giveConsent(t, db)
	convID := seedConversation(t, db, false)
	learningID := insertLearning(t, db, convID, models.LearningDecision, 0.95)

	h := New(db, &LocalPublisher{}, nil)
	_, err := h.Publish(context.Background(), learningID)
	require.ErrorIs(t, err, ErrNotYetValidated)
	require.False(t, errorIsPolicyViolation(err))
}

func TestHandler_Publish_UnvalidatedWhitelistedHighConfidence_Succeeds(t *testing.T) {
	db := newTestDB(t)
	giveConsent(t, db)
	convID := seedConversation(t, db, false)
	learningID := insertLearning(t, db, convID, models.LearningPattern, 0.95)

	h := New(db, &LocalPublisher{}, nil)
	up, err := h.Publish(context.Background(), learningID)
	require.NoError(t, err)
	require.NotEmpty(t, up.ContentAddress)
}

func TestHandler_Publish_RevokedContentAddress_IsPolicyViolation(t *testing.T) {
	db := newTestDB(t)
	giveConsent(t, db)
	convID := seedConversation(t, db, true)
	learningID := insertLearning(t, db, convID, models.LearningPattern, 0.9)

	ctx := context.Background()
	l, err := db.Learnings().Get(ctx, learningID)
	require.NoError(t, err)

	// Derive the address LocalPublisher will deterministically produce
	// for this content, and revoke it before Publish ever runs.
	probe := &LocalPublisher{}
	address, _, _ := probe.Publish(ctx, l.Content)
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := db.Revocations().Record(ctx, tx, address, "operator request")
		return err
	}))

	h := New(db, &LocalPublisher{}, nil)
	_, err = h.Publish(ctx, learningID)
	require.ErrorIs(t, err, ErrPolicyViolation)
}

func TestHandler_Handler_MalformedPayload_IsNonRetriable(t *testing.T) {
	db := newTestDB(t)
	h := New(db, &LocalPublisher{}, nil)
	job := &models.Job{ID: "job-1", Type: models.JobTypePublishLearning, Payload: `not json`}
	_, err := h.Handler(context.Background(), job)
	require.Error(t, err)
	var unwrapper interface{ Unwrap() error }
	require.ErrorAs(t, err, &unwrapper)
}

func errorIsPolicyViolation(err error) bool {
	for err != nil {
		if err == ErrPolicyViolation {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
