// Package testutil provides shared helpers for integration tests that need
// a real PostgreSQL server.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
)

// PostgresDSN returns the connection string for integration tests.
// Tests that call it are skipped unless DATABASE_URL is set.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	return dsn
}

// DropTables removes the named tables so each integration run starts from an
// empty database. Missing tables are not an error.
func DropTables(ctx context.Context, db *sql.DB, tables ...string) error {
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
