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

// Conversations groups all Conversation-entity operations.
type Conversations struct{ db *DB }

// Conversations returns the Conversation sub-API.
func (d *DB) Conversations() *Conversations { return &Conversations{db: d} }

// GetOrCreateBySessionKey returns the conversation for sessionKey, creating
// one if this is the first message of the session. Mirrors the teacher's
// claim-then-create transactional idiom in pkg/queue/worker.go.
func (c *Conversations) GetOrCreateBySessionKey(ctx context.Context, tx *Tx, sessionKey string) (*models.Conversation, error) {
	if sessionKey == "" {
		return nil, NewValidationError("session_key", "required")
	}

	var conv models.Conversation
	err := tx.tx.GetContext(ctx, &conv,
		`SELECT * FROM conversations WHERE session_key = ? LIMIT 1`, sessionKey)
	switch {
	case err == nil:
		return &conv, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, fmt.Errorf("%w: query conversation: %v", ErrUnavailable, err)
	}

	now := time.Now().UTC()
	conv = models.Conversation{
		ID:         idgen.New(),
		SessionKey: sessionKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO conversations (id, session_key, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.SessionKey, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert conversation: %v", ErrUnavailable, err)
	}
	return &conv, nil
}

// Touch updates updated_at to reflect new activity in the conversation.
func (c *Conversations) Touch(ctx context.Context, tx *Tx, id string) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: touch conversation: %v", ErrUnavailable, err)
	}
	return nil
}

// Get fetches a conversation by id outside of a transaction (read-only).
func (c *Conversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.db.conn.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %v", ErrUnavailable, err)
	}
	return &conv, nil
}
