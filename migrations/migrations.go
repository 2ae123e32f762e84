// Package migrations embeds the SQL schema and applies it in file order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// lockKey serialises Apply across processes sharing one database.
const lockKey int64 = 0x63616d7075736d6b

const lockQuery = `SELECT pg_advisory_xact_lock($1)`

//go:embed *.sql
var files embed.FS

// Apply executes every embedded migration in one transaction holding an
// advisory lock, so binaries started together do not race on DDL.
// Statements are idempotent; running Apply against an initialised
// database is a no-op.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockQuery, lockKey); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}
