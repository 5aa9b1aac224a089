package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const schemaVersion = 1

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// applyPragmas favors durability and parallel-read throughput: WAL journal
// mode lets crawler writes and query reads proceed concurrently, and the
// larger mmap/cache sizes amortize the catalog's batched upserts.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA cache_size = -20000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"DROP TABLE IF EXISTS items",
		`CREATE TABLE items (
			path TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			lower_name TEXT NOT NULL,
			is_dir INTEGER NOT NULL,
			size INTEGER NOT NULL,
			mtime_ns INTEGER NOT NULL
		) WITHOUT ROWID`,
		"CREATE INDEX idx_items_name ON items(name, path)",
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", stmt, err)
		}
	}

	return nil
}
