package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/calvinalkan/errthang/pkg/index"
)

// ItemsSortedByName range-fetches all items ordered by name (then path, for
// a deterministic tiebreak across rebuilds), projecting the five metadata
// fields the snapshot format needs. limit <= 0 means "no limit" - used by
// IndexWriter to drain the full catalog, or by SearchEngine's startup fast
// path with a small limit.
func (c *Catalog) ItemsSortedByName(ctx context.Context, limit int) ([]index.Item, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	query := strings.Builder{}
	query.WriteString(`SELECT path, name, lower_name, is_dir, size, mtime_ns FROM items ORDER BY name, path`)

	args := make([]any, 0, 1)

	if limit > 0 {
		query.WriteString(" LIMIT ?")

		args = append(args, limit)
	}

	rows, err := c.sql.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("items sorted by name: %w", err)
	}

	defer func() { _ = rows.Close() }()

	items := make([]index.Item, 0)

	for rows.Next() {
		var (
			item    index.Item
			isDir   int
			mtimeNs int64
		)

		if err := rows.Scan(&item.Path, &item.Name, &item.LowerName, &isDir, &item.Size, &mtimeNs); err != nil {
			return nil, fmt.Errorf("items sorted by name: scan: %w", err)
		}

		item.IsDir = isDir != 0
		item.ModTime = nanosToModTime(mtimeNs)

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("items sorted by name: rows: %w", err)
	}

	return items, nil
}

// DeletePrefix removes every item whose path starts with prefix - the
// bulk-delete Crawler uses before reindexing a root (spec's clear(prefix)
// operation).
func (c *Catalog) DeletePrefix(ctx context.Context, prefix string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if prefix == "" {
		return fmt.Errorf("delete prefix: prefix is empty")
	}

	pattern := escapeLikePattern(prefix) + "%"

	if _, err := c.sql.ExecContext(ctx, `DELETE FROM items WHERE path LIKE ? ESCAPE '\'`, pattern); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}

	return nil
}

// escapeLikePattern escapes SQLite LIKE metacharacters in a literal prefix
// so reserved characters in real filesystem paths (% and _ are both valid
// path bytes) aren't interpreted as wildcards.
func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`%`, `\%`,
		`_`, `\_`,
	)

	return replacer.Replace(s)
}
