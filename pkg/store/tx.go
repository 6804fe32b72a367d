package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tx is a single transactional unit of work. The Store's single-writer WAL
// mode means at most one Tx is ever mid-write at a time; SQLite's own
// locking (not an in-process mutex) provides that serialization, matching
// the teacher's reliance on Postgres's own locking in claimNextSession.
type Tx struct {
	tx *sqlx.Tx
}

// Begin starts a new transaction.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	return &Tx{tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after rollback).
func (d *DB) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Commit finalizes the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// Rollback discards the transaction. Safe to call after Commit (no-op).
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
