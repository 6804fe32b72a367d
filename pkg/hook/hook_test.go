package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/sanitize"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.db")
	db, err := store.Open(context.Background(), store.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHandle_UserMessage_EnqueuesOnlyValidationJob(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	in := strings.NewReader(`{"type":"message","session_key":"sess-1","role":"user","content":"hello there"}`)
	var out, errOut bytes.Buffer

	err := h.Handle(context.Background(), in, &out, &errOut)
	require.NoError(t, err)
	require.Empty(t, errOut.String())
	require.Equal(t, AckOK+"\n", out.String())

	conv, err := db.Conversations().Get(context.Background(), mustConversationID(t, db, "sess-1"))
	require.NoError(t, err)
	msgs, err := db.Messages().ListByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.RoleUser, msgs[0].Role)

	n, err := db.Jobs().CountByTypeAndStatus(context.Background(), models.JobTypeAISanitizationValidation, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = db.Jobs().CountByTypeAndStatus(context.Background(), models.JobTypeExtractLearning, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestHandle_AssistantMessage_EnqueuesBothJobs(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	in := strings.NewReader(`{"type":"message","session_key":"sess-2","role":"assistant","content":"here is the fix"}`)
	var out, errOut bytes.Buffer

	err := h.Handle(context.Background(), in, &out, &errOut)
	require.NoError(t, err)
	require.Empty(t, errOut.String())

	n, err := db.Jobs().CountByTypeAndStatus(context.Background(), models.JobTypeAISanitizationValidation, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = db.Jobs().CountByTypeAndStatus(context.Background(), models.JobTypeExtractLearning, models.JobQueued)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHandle_MalformedJSON_ExitsCleanlyWithDiagnostic(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	in := strings.NewReader(`not json at all`)
	var out, errOut bytes.Buffer

	err := h.Handle(context.Background(), in, &out, &errOut)
	require.NoError(t, err) // never a non-nil error: the process must still exit 0
	require.Contains(t, errOut.String(), "malformed JSON")
	require.Empty(t, out.String())
}

func TestHandle_MissingSessionKey_Rejected(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	in := strings.NewReader(`{"type":"message","role":"user","content":"hi"}`)
	var out, errOut bytes.Buffer

	err := h.Handle(context.Background(), in, &out, &errOut)
	require.NoError(t, err)
	require.Contains(t, errOut.String(), "session_key")
}

func TestHandle_PayloadTooLarge_Rejected(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	huge := make([]byte, MaxEventBytes+1024)
	for i := range huge {
		huge[i] = 'a'
	}
	in := bytes.NewReader(huge)
	var out, errOut bytes.Buffer

	err := h.Handle(context.Background(), in, &out, &errOut)
	require.NoError(t, err)
	require.Contains(t, errOut.String(), "exceeds")
}

func TestHandle_ContentSanitizedBeforePersist(t *testing.T) {
	db := newTestDB(t)
	h := New(db, sanitize.New(), nil)

	payload, err := json.Marshal(map[string]string{
		"type":        "message",
		"session_key": "sess-3",
		"role":        "user",
		"content":     "my email is jane.doe@example.com",
	})
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	require.NoError(t, h.Handle(context.Background(), bytes.NewReader(payload), &out, &errOut))

	conv, err := db.Conversations().Get(context.Background(), mustConversationID(t, db, "sess-3"))
	require.NoError(t, err)
	msgs, err := db.Messages().ListByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotContains(t, msgs[0].Content, "jane.doe@example.com")
}

func TestEvent_UnmarshalJSON_PreservesUnknownFieldsWithoutLoggingThem(t *testing.T) {
	var e Event
	err := json.Unmarshal([]byte(`{"type":"message","session_key":"s","role":"user","content":"hi","tool_call_id":"abc123"}`), &e)
	require.NoError(t, err)
	require.Contains(t, e.Extra, "tool_call_id")
}

func mustConversationID(t *testing.T, db *store.DB, sessionKey string) string {
	t.Helper()
	var id string
	require.NoError(t, db.WithTx(context.Background(), func(tx *store.Tx) error {
		conv, err := db.Conversations().GetOrCreateBySessionKey(context.Background(), tx, sessionKey)
		if err != nil {
			return err
		}
		id = conv.ID
		return nil
	}))
	return id
}
