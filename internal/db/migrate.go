package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect names the SQL flavour a connection speaks.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Migrate applies every pending goose migration for the given dialect.
// A provider is used instead of goose's package-level state so that
// SQLite and Postgres connections can be migrated from the same process.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var (
		gd  goose.Dialect
		dir string
	)
	switch dialect {
	case SQLite:
		gd, dir = goose.DialectSQLite3, "migrations/sqlite"
	case Postgres:
		gd, dir = goose.DialectPostgres, "migrations/postgres"
	default:
		return fmt.Errorf("migrate: unknown dialect %q", dialect)
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
