package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Messages groups all Message-entity operations.
type Messages struct{ db *DB }

// Messages returns the Message sub-API.
func (d *DB) Messages() *Messages { return &Messages{db: d} }

// InsertInput carries the fields the Hook Entry Point supplies to create a
// Message. Content must already be the output of the Fast Sanitizer.
type InsertInput struct {
	ConversationID      string
	Role                models.Role
	Content             string
	SanitizationVersion int
}

// Insert assigns the next sequence number within the conversation and
// inserts the message in the given transaction. The pre_sanitized flag is
// always set to true here — this is the only code path permitted to create
// a Message row, and it runs only after the Fast Sanitizer has run.
func (m *Messages) Insert(ctx context.Context, tx *Tx, in InsertInput) (*models.Message, error) {
	if in.ConversationID == "" {
		return nil, NewValidationError("conversation_id", "required")
	}
	if in.Role != models.RoleUser && in.Role != models.RoleAssistant {
		return nil, NewValidationError("role", "must be user or assistant")
	}

	var nextSeq int
	err := tx.tx.GetContext(ctx, &nextSeq,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE conversation_id = ?`,
		in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: compute sequence: %v", ErrUnavailable, err)
	}

	msg := &models.Message{
		ID:                  idgen.New(),
		ConversationID:      in.ConversationID,
		Role:                in.Role,
		Sequence:            nextSeq,
		Content:             in.Content,
		PreSanitized:        true,
		AIValidated:         false,
		SanitizationVersion: in.SanitizationVersion,
		CreatedAt:           time.Now().UTC(),
	}

	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO messages
			(id, conversation_id, role, sequence, content, pre_sanitized,
			 ai_validated, ai_detections, sanitization_version, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, 0, NULL, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Sequence, msg.Content,
		msg.SanitizationVersion, msg.CreatedAt)
	if err != nil {
		if isPreSanitizedTriggerViolation(err) {
			return nil, ErrNotPreSanitized
		}
		return nil, fmt.Errorf("%w: insert message: %v", ErrUnavailable, err)
	}

	return msg, nil
}

// isPreSanitizedTriggerViolation reports whether err came from the
// trg_messages_require_presanitized trigger.
func isPreSanitizedTriggerViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "pre-sanitized")
}

// Get fetches a message by id.
func (m *Messages) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := m.db.conn.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get message: %v", ErrUnavailable, err)
	}
	return &msg, nil
}

// ListByConversation returns every message in a conversation, ordered by
// sequence, ascending.
func (m *Messages) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var msgs []*models.Message
	err := m.db.conn.SelectContext(ctx, &msgs,
		`SELECT * FROM messages WHERE conversation_id = ? ORDER BY sequence ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrUnavailable, err)
	}
	return msgs, nil
}

// AllValidated reports whether every message in a conversation has
// ai_validated = true. Used by the publish_learning handler's gate.
func (m *Messages) AllValidated(ctx context.Context, conversationID string) (bool, error) {
	var unvalidated int
	err := m.db.conn.GetContext(ctx, &unvalidated,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND ai_validated = 0`,
		conversationID)
	if err != nil {
		return false, fmt.Errorf("%w: count unvalidated messages: %v", ErrUnavailable, err)
	}
	return unvalidated == 0, nil
}

// ApplyAIValidation is the sole mutator of an already-inserted Message: it
// is the only code path permitted to change content after insert, and it
// may only set the AI-validation fields (content, ai_validated,
// ai_detections). This encodes the pre-update invariant from
// SPEC_FULL.md §4.1 that ent/SQLite triggers cannot express directly.
func (m *Messages) ApplyAIValidation(ctx context.Context, tx *Tx, messageID, newContent string, detectionsJSON string) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE messages
		 SET content = ?, ai_validated = 1, ai_detections = ?
		 WHERE id = ?`,
		newContent, detectionsJSON, messageID)
	if err != nil {
		return fmt.Errorf("%w: apply ai validation: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
