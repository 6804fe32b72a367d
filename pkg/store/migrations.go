package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrate applies every pending up migration embedded in the binary.
// Migrations are idempotent scripts with up/down pairs, the same shape as
// the teacher's pkg/database/client.go#runMigrations, adapted from the
// Postgres driver to the sqlite3 one.
func (d *DB) migrate() error {
	driver, err := sqlite3.WithInstance(d.conn.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "contextvault", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Do not call m.Close(): that closes the underlying *sql.DB, which we
	// still need for the lifetime of the process.
	return source.Close()
}

// SchemaVersion reports the currently applied migration version.
func (d *DB) SchemaVersion() (version uint, dirty bool, err error) {
	driver, err := sqlite3.WithInstance(d.conn.DB, &sqlite3.Config{})
	if err != nil {
		return 0, false, err
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithInstance("iofs", source, "contextvault", driver)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = source.Close() }()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
