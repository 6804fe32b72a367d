package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// SanitizationLogs groups SanitizationLog-entity operations. Rows are
// immutable once written — there is intentionally no update method.
type SanitizationLogs struct{ db *DB }

// SanitizationLogs returns the SanitizationLog sub-API.
func (d *DB) SanitizationLogs() *SanitizationLogs { return &SanitizationLogs{db: d} }

// Append writes one audit row for a sanitization pass. detectionsJSON must
// never contain original (pre-redaction) values.
func (s *SanitizationLogs) Append(ctx context.Context, tx *Tx, messageID string, stage models.SanitizationStage, detectionsJSON string) (*models.SanitizationLog, error) {
	row := &models.SanitizationLog{
		ID:         idgen.New(),
		MessageID:  messageID,
		Stage:      stage,
		Detections: detectionsJSON,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO sanitization_log (id, message_id, stage, detections, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.MessageID, row.Stage, row.Detections, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert sanitization log: %v", ErrUnavailable, err)
	}
	return row, nil
}

// ListByMessage returns every audit row for a message, oldest first.
func (s *SanitizationLogs) ListByMessage(ctx context.Context, messageID string) ([]*models.SanitizationLog, error) {
	var rows []*models.SanitizationLog
	err := s.db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM sanitization_log WHERE message_id = ? ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sanitization logs: %v", ErrUnavailable, err)
	}
	return rows, nil
}
