// Package catalog is a SQLite-backed (mattn/go-sqlite3) implementation of
// the Catalog collaborator errthang's search engine consumes: bulk insert,
// a name-sorted range fetch, per-path upsert/delete, and prefix-delete.
//
// The engine's core is storage-agnostic (see pkg/index and internal/engine);
// this package exists so the module is runnable and testable end-to-end
// without a caller having to supply their own Catalog.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/errthang/pkg/fs"
	"github.com/calvinalkan/errthang/pkg/index"
)

const lockTimeout = 10 * time.Second

// Catalog wires the SQLite metadata store together with the cross-process
// file lock used to serialize schema (re)creation.
type Catalog struct {
	dir      string
	sql      *sql.DB
	fs       fs.FS
	locker   *fs.Locker
	lockPath string
}

// Open opens (creating if necessary) the SQLite catalog rooted at dir. If
// the stored schema version doesn't match the current one, the schema is
// recreated - the catalog is a derived index over the filesystem, not a
// source of truth, so a version bump just means "crawl again."
func Open(ctx context.Context, dir string) (*Catalog, error) {
	if ctx == nil {
		return nil, errors.New("open catalog: context is nil")
	}

	if dir == "" {
		return nil, errors.New("open catalog: directory is empty")
	}

	catalogDir := filepath.Clean(dir)
	fsReal := fs.NewReal()
	locker := fs.NewLocker(fsReal)

	if err := fsReal.MkdirAll(catalogDir, 0o750); err != nil {
		return nil, fmt.Errorf("open catalog: create directory: %w", err)
	}

	lockPath := filepath.Join(catalogDir, "catalog.lock")

	db, err := openSQLite(ctx, filepath.Join(catalogDir, "catalog.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	cat := &Catalog{
		dir:      catalogDir,
		sql:      db,
		fs:       fsReal,
		locker:   locker,
		lockPath: lockPath,
	}

	version, err := userVersion(ctx, db)
	if err != nil {
		_ = cat.Close()

		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if version == schemaVersion {
		return cat, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock, err := locker.LockWithTimeout(lockCtx, lockPath)
	if err != nil {
		_ = cat.Close()

		return nil, fmt.Errorf("open catalog: lock: %w", err)
	}

	err = createSchema(ctx, db)

	closeErr := lock.Close()

	if err != nil || closeErr != nil {
		_ = cat.Close()

		return nil, errors.Join(err, closeErr)
	}

	return cat, nil
}

// Close releases the SQLite handle. Idempotent; safe on a nil Catalog.
func (c *Catalog) Close() error {
	if c == nil || c.sql == nil {
		return nil
	}

	err := c.sql.Close()
	c.sql = nil

	if err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}

	return nil
}

// BulkInsert upserts items in a single transaction. Crawler is responsible
// for batching (spec: batches of 1000); Catalog itself has no batch-size
// opinion.
func (c *Catalog) BulkInsert(ctx context.Context, items []index.Item) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	tx, err := c.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bulk insert: begin: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("bulk insert: prepare: %w", err)
	}

	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		if err := execUpsert(ctx, stmt, item); err != nil {
			return fmt.Errorf("bulk insert %s: %w", item.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bulk insert: commit: %w", err)
	}

	committed = true

	return nil
}

// Upsert inserts or replaces a single item by path.
func (c *Catalog) Upsert(ctx context.Context, item index.Item) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if _, err := c.sql.ExecContext(ctx, upsertSQL, upsertArgs(item)...); err != nil {
		return fmt.Errorf("upsert %s: %w", item.Path, err)
	}

	return nil
}

// Delete removes the item at path, if present. Deleting a path that isn't
// in the catalog is not an error.
func (c *Catalog) Delete(ctx context.Context, path string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if path == "" {
		return errors.New("delete: path is empty")
	}

	if _, err := c.sql.ExecContext(ctx, `DELETE FROM items WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	return nil
}

func (c *Catalog) checkOpen() error {
	if c == nil || c.sql == nil {
		return errors.New("catalog: not open")
	}

	return nil
}

const upsertSQL = `
	INSERT INTO items (path, name, lower_name, is_dir, size, mtime_ns)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		lower_name = excluded.lower_name,
		is_dir = excluded.is_dir,
		size = excluded.size,
		mtime_ns = excluded.mtime_ns`

func execUpsert(ctx context.Context, stmt *sql.Stmt, item index.Item) error {
	_, err := stmt.ExecContext(ctx, upsertArgs(item)...)

	return err
}

func upsertArgs(item index.Item) []any {
	lower := item.LowerName
	if lower == "" {
		lower = index.LowerASCII(item.Name)
	}

	isDir := 0
	if item.IsDir {
		isDir = 1
	}

	return []any{item.Path, item.Name, lower, isDir, item.Size, modTimeToNanos(item.ModTime)}
}

func modTimeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func nanosToModTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns).UTC()
}
