package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Revocations groups Revocation-entity operations: logical deletion markers
// that exclude an already-published content address from future results
// without needing to reach out and delete the remote copy.
type Revocations struct{ db *DB }

// Revocations returns the Revocation sub-API.
func (d *DB) Revocations() *Revocations { return &Revocations{db: d} }

// Record marks a content address as revoked.
func (r *Revocations) Record(ctx context.Context, tx *Tx, contentAddress, reason string) (*models.Revocation, error) {
	if contentAddress == "" {
		return nil, NewValidationError("content_address", "required")
	}

	rev := &models.Revocation{
		ID:             idgen.New(),
		ContentAddress: contentAddress,
		Reason:         reason,
		RevokedAt:      time.Now().UTC(),
	}
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO revocations (id, content_address, reason, revoked_at) VALUES (?, ?, ?, ?)`,
		rev.ID, rev.ContentAddress, rev.Reason, rev.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert revocation: %v", ErrUnavailable, err)
	}
	return rev, nil
}

// IsRevoked reports whether contentAddress has any revocation row.
func (r *Revocations) IsRevoked(ctx context.Context, contentAddress string) (bool, error) {
	var n int
	err := r.db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM revocations WHERE content_address = ?`, contentAddress)
	if err != nil {
		return false, fmt.Errorf("%w: check revocation: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
