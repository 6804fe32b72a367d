package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Uploads groups Upload-entity operations: the record of a Learning pushed
// to the decentralized publishing layer.
type Uploads struct{ db *DB }

// Uploads returns the Upload sub-API.
func (d *DB) Uploads() *Uploads { return &Uploads{db: d} }

// Record inserts a new Upload row once the publish_learning job has
// confirmed the content address and anchor transaction.
func (u *Uploads) Record(ctx context.Context, tx *Tx, learningID, contentAddress, anchorTx string) (*models.Upload, error) {
	if learningID == "" {
		return nil, NewValidationError("learning_id", "required")
	}
	if contentAddress == "" {
		return nil, NewValidationError("content_address", "required")
	}

	up := &models.Upload{
		ID:             idgen.New(),
		LearningID:     learningID,
		ContentAddress: contentAddress,
		AnchorTx:       anchorTx,
		UploadedAt:     time.Now().UTC(),
	}
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO uploads (id, learning_id, content_address, anchor_tx, uploaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		up.ID, up.LearningID, up.ContentAddress, up.AnchorTx, up.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert upload: %v", ErrUnavailable, err)
	}
	return up, nil
}

// ListByLearning returns every upload recorded for a learning, oldest first
// — normally exactly one, but re-publishing after a revocation can add more.
func (u *Uploads) ListByLearning(ctx context.Context, learningID string) ([]*models.Upload, error) {
	var rows []*models.Upload
	err := u.db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM uploads WHERE learning_id = ? ORDER BY uploaded_at ASC`, learningID)
	if err != nil {
		return nil, fmt.Errorf("%w: list uploads: %v", ErrUnavailable, err)
	}
	return rows, nil
}
