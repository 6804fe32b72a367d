package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a fresh, migrated SQLite database in a per-test temp
// directory, matching the teacher's newTestClient helper pattern but
// without any external container dependency.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "contextvault.db")
	db, err := Open(ctx, DefaultConfig(path))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.SchemaVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}

func TestOpen_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contextvault.db")

	db1, err := Open(ctx, DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(ctx, DefaultConfig(path))
	require.NoError(t, err)
	defer db2.Close()

	version, dirty, err := db2.SchemaVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}
