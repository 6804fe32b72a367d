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

// Consents groups Consent-entity operations.
type Consents struct{ db *DB }

// Consents returns the Consent sub-API.
func (d *DB) Consents() *Consents { return &Consents{db: d} }

// ConsentInput carries the fields captured when an operator opts in (or
// updates their opt-in) to publishing.
type ConsentInput struct {
	Version                string
	TextHash               string
	ShareEnabled           bool
	ManualApprovalRequired bool
	Attribution            models.AttributionMode
	AgeConfirmed           bool
	RetentionExpiresAt     *time.Time
}

// Record inserts a new Consent row. Consent is versioned, not updated in
// place: withdrawing or changing terms creates a new row so the history of
// what was agreed to, and when, is never lost.
func (c *Consents) Record(ctx context.Context, tx *Tx, in ConsentInput) (*models.Consent, error) {
	consent := &models.Consent{
		ID:                     idgen.New(),
		GivenAt:                time.Now().UTC(),
		Version:                in.Version,
		TextHash:               in.TextHash,
		ShareEnabled:           in.ShareEnabled,
		ManualApprovalRequired: in.ManualApprovalRequired,
		Attribution:            in.Attribution,
		AgeConfirmed:           in.AgeConfirmed,
		RetentionExpiresAt:     in.RetentionExpiresAt,
	}
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO consent
			(id, given_at, version, text_hash, share_enabled, manual_approval_required,
			 attribution, age_confirmed, retention_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		consent.ID, consent.GivenAt, consent.Version, consent.TextHash, consent.ShareEnabled,
		consent.ManualApprovalRequired, consent.Attribution, consent.AgeConfirmed, consent.RetentionExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert consent: %v", ErrUnavailable, err)
	}
	return consent, nil
}

// Withdraw stamps withdrawn_at on the most recent consent row, making it
// immediately inactive.
func (c *Consents) Withdraw(ctx context.Context, tx *Tx, id string) error {
	now := time.Now().UTC()
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE consent SET withdrawn_at = ? WHERE id = ? AND withdrawn_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("%w: withdraw consent: %v", ErrUnavailable, err)
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

// Latest returns the most recently given consent row, if any.
func (c *Consents) Latest(ctx context.Context) (*models.Consent, error) {
	var consent models.Consent
	err := c.db.conn.GetContext(ctx, &consent,
		`SELECT * FROM consent ORDER BY given_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get latest consent: %v", ErrUnavailable, err)
	}
	return &consent, nil
}

// IsPublishingActive reports whether the latest consent currently permits
// publishing, per models.Consent.Active.
func (c *Consents) IsPublishingActive(ctx context.Context) (bool, error) {
	consent, err := c.Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consent.Active(time.Now().UTC()), nil
}
