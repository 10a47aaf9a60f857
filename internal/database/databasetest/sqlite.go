// Package databasetest provides migrated in-memory databases for tests.
package databasetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/payflow-auth/internal/database"
)

// NewSQLite returns a private in-memory SQLite database with all migrations
// applied. It is closed when the test finishes.
func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"

	db, err := database.OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(ctx, db)
	require.NoError(t, err)

	return db
}
