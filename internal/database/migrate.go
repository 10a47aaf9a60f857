package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Migrate applies all pending migrations for the dialect of db and returns
// the number of migrations applied.
func Migrate(ctx context.Context, db *bun.DB) (int, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return len(results), nil
}

// MigrationVersion returns the current schema version of db
func MigrationVersion(ctx context.Context, db *bun.DB) (int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	return version, nil
}

func newProvider(db *bun.DB) (*goose.Provider, error) {
	dialect := goose.DialectPostgres
	dir := "migrations/postgres"
	if Driver(db) == DriverSQLite {
		dialect = goose.DialectSQLite3
		dir = "migrations/sqlite"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return provider, nil
}
