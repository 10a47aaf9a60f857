package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/redmonkez12/payflow-auth/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured database, verifies the connection and
// returns a Bun DB wrapping the pool. The caller owns the returned handle.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		return wrap(ctx, sqlDB, DriverPostgres)
	case DriverSQLite:
		return OpenSQLite(ctx, sqliteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database from a modernc DSN.
// SQLite allows a single writer, so the pool is capped at one connection.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return wrap(ctx, sqlDB, DriverSQLite)
}

// NewBunDB creates a new Bun DB instance from an existing sql.DB connection
func NewBunDB(sqlDB *sql.DB, driver string) *bun.DB {
	if driver == DriverSQLite {
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
	return bun.NewDB(sqlDB, pgdialect.New())
}

// Driver reports which driver a Bun DB was built for
func Driver(db *bun.DB) string {
	if db.Dialect().Name() == dialect.SQLite {
		return DriverSQLite
	}
	return DriverPostgres
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func wrap(ctx context.Context, sqlDB *sql.DB, driver string) (*bun.DB, error) {
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewBunDB(sqlDB, driver), nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
