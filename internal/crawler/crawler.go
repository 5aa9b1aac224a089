// Package crawler walks a root directory and populates a Catalog with the
// metadata IndexWriter will later snapshot.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/calvinalkan/errthang/internal/pathnorm"
	"github.com/calvinalkan/errthang/pkg/index"
)

// checkInterval is how often (in entries that pass the hidden and excluded
// filters, whether or not they are then accepted) the crawler
// reconciles the generation token and checks for cancellation. Spec: every
// 1000 iterations.
const checkInterval = 1000

// batchSize is how many items accumulate before a bulk insert is flushed to
// the Catalog. Spec: batches of 1000.
const batchSize = 1000

// ErrCancelled is returned (via errors.Is) when a crawl stops because its
// generation token was superseded or the context was cancelled.
var ErrCancelled = errors.New("crawl cancelled")

// Catalog is the subset of the catalog collaborator the Crawler needs:
// batched writes and the prefix-delete used by Clear.
type Catalog interface {
	BulkInsert(ctx context.Context, items []index.Item) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Crawler walks directory trees and writes what it finds to a Catalog.
type Crawler struct {
	catalog Catalog
	log     *zap.SugaredLogger
}

// New returns a Crawler backed by catalog. A nil logger disables logging.
func New(catalog Catalog, log *zap.SugaredLogger) *Crawler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Crawler{catalog: catalog, log: log}
}

// GenerationCheck reports whether generation is still the current one. The
// crawler calls this every checkInterval entries and aborts without a final
// flush if it returns false - the caller (SearchEngine) owns the token.
type GenerationCheck func() bool

// Clear deletes every catalog record whose path starts with prefix. Crawl
// callers use this before indexing a root from scratch.
func (c *Crawler) Clear(ctx context.Context, prefix string) error {
	if prefix == "" {
		return errors.New("clear: prefix is empty")
	}

	if err := c.catalog.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("clear %s: %w", prefix, err)
	}

	return nil
}

// Crawl walks root recursively, skipping hidden entries, any path under an
// excluded prefix, and anything modified after the crawl started (to avoid
// self-induced churn from the filesystem watcher racing the crawl). Surviving
// entries are batched into groups of batchSize and bulk-inserted into the
// Catalog. Every checkInterval entries, Crawl calls stillCurrent; if it
// returns false, or ctx is done, the crawl stops immediately, dropping its
// current partial batch - the next crawl will pick up what was missed.
//
// Crawl returns the number of items successfully inserted before it stopped.
func (c *Crawler) Crawl(ctx context.Context, root string, exclude []string, stillCurrent GenerationCheck) (int, error) {
	if root == "" {
		return 0, errors.New("crawl: root is empty")
	}

	if stillCurrent == nil {
		stillCurrent = func() bool { return true }
	}

	startedAt := time.Now()
	excludePrefixes := append([]string(nil), exclude...)

	batch := make([]index.Item, 0, batchSize)
	total := 0
	iterations := 0
	cancelled := false

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := c.catalog.BulkInsert(ctx, batch); err != nil {
			return fmt.Errorf("crawl %s: bulk insert: %w", root, err)
		}

		total += len(batch)
		batch = batch[:0]

		return nil
	}

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			c.log.Debugw("crawl: skip entry after stat error", "path", path, "error", err)

			return nil
		}

		if isHidden(entry.Name()) && path != root {
			if entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if hasExcludedPrefix(path, excludePrefixes) {
			if entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		iterations++

		if iterations%checkInterval == 0 {
			if ctx.Err() != nil || !stillCurrent() {
				cancelled = true

				return errStopWalk
			}
		}

		if entry.IsDir() {
			return nil
		}

		item, ok, statErr := toItem(path, entry, startedAt)
		if statErr != nil {
			c.log.Debugw("crawl: skip entry after stat error", "path", path, "error", statErr)

			return nil
		}

		if !ok {
			return nil
		}

		batch = append(batch, item)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		return nil
	})

	if walkErr != nil && !errors.Is(walkErr, errStopWalk) {
		return total, fmt.Errorf("crawl %s: %w", root, walkErr)
	}

	if cancelled {
		return total, fmt.Errorf("crawl %s: %w", root, ErrCancelled)
	}

	if err := flush(); err != nil {
		return total, err
	}

	c.log.Infow("crawl completed", "root", root, "items", total, "duration", time.Since(startedAt))

	return total, nil
}

// errStopWalk is a sentinel returned from the WalkDir callback to unwind the
// walk early; it is never surfaced to callers of Crawl.
var errStopWalk = errors.New("crawler: stop walk")

func toItem(path string, entry fs.DirEntry, crawlStart time.Time) (index.Item, bool, error) {
	info, err := entry.Info()
	if err != nil {
		if os.IsNotExist(err) {
			return index.Item{}, false, nil
		}

		return index.Item{}, false, err
	}

	if info.ModTime().After(crawlStart) {
		return index.Item{}, false, nil
	}

	canonical := pathnorm.Canonicalize(path)
	name := entry.Name()

	return index.Item{
		Path:      canonical,
		Name:      name,
		LowerName: index.LowerASCII(name),
		IsDir:     entry.IsDir(),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}, true, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func hasExcludedPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
