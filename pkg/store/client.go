// Package store provides the embedded, single-writer relational store that
// backs every other component: messages, conversations, the sanitization
// audit log, the job queue, the budget ledger, consent, and uploads.
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// Config holds Store connection settings.
type Config struct {
	// Path is the filesystem path to the database file. A WAL side file
	// and a shm side file are created alongside it.
	Path string

	// MaxOpenConns bounds the connection pool. SQLite serializes writers
	// internally, but WAL mode allows many concurrent readers, so this can
	// safely be set above 1.
	MaxOpenConns int

	// BusyTimeout is how long a connection waits on SQLITE_BUSY before
	// giving up, passed through the DSN.
	BusyTimeout time.Duration
}

// DefaultConfig returns sane defaults: a bounded reader pool and a 5s busy
// timeout, matching SPEC_FULL.md's "many readers, one writer" contract.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		MaxOpenConns: 8,
		BusyTimeout:  5 * time.Second,
	}
}

// DB wraps the embedded store connection. All mutating access goes through
// a Tx obtained from Begin.
type DB struct {
	conn *sqlx.DB
	cfg  Config
}

// Open connects to (creating if necessary) the SQLite file at cfg.Path,
// enables WAL mode and foreign keys, sets the page cache and synchronous
// mode per SPEC_FULL.md §4.1, and applies any pending migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=%d",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)

	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}

	// SQLite's own locking means a large open pool just queues writers;
	// a handful of reader connections is enough under WAL.
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 8
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-65536", // 64 MiB page cache (negative = KiB)
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: pragma %q: %v", ErrUnavailable, p, err)
		}
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}

	restrictFilePermissions(cfg.Path)

	return db, nil
}

// restrictFilePermissions sets owner-only permissions on the database file
// and its WAL/shm side files, per SPEC_FULL.md §4.1/§6: the store treats
// the file as sensitive regardless of the process umask. Missing side
// files (e.g. WAL not yet created) are not an error.
func restrictFilePermissions(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Chmod(p, 0o600)
	}
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the underlying *sqlx.DB for health checks and one-off
// read-only queries that do not need transactional scope.
func (d *DB) Conn() *sqlx.DB {
	return d.conn
}
