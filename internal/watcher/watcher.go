// Package watcher implements the FSWatcher adapter: it wraps an
// fsnotify.Watcher and translates raw filesystem events into a re-stat
// followed by a Catalog write and an engine overlay mutation, exactly the
// "stream of absolute paths whose contents may have changed, mapped to
// overlay put/remove calls after metadata re-stat" the search engine
// expects.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/calvinalkan/errthang/internal/pathnorm"
	"github.com/calvinalkan/errthang/pkg/index"
)

// Catalog is the subset of internal/catalog.Catalog the watcher writes
// through to, so the next rebuild's Catalog drain observes the same change
// the overlay is already shadowing.
type Catalog interface {
	Upsert(ctx context.Context, item index.Item) error
	Delete(ctx context.Context, path string) error
}

// Engine is the subset of internal/engine.Engine the watcher drives
// directly: the overlay side of a mutation.
type Engine interface {
	Put(ctx context.Context, item index.Item) error
	Remove(ctx context.Context, path string) error
}

// Watcher wraps an fsnotify.Watcher and republishes its events as Catalog/
// Engine mutations. A single goroutine drains fsnotify's event and error
// channels; AddRecursive may be called concurrently with that goroutine
// running.
type Watcher struct {
	fsw     *fsnotify.Watcher
	catalog Catalog
	engine  Engine
	log     *zap.SugaredLogger
	exclude []string

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Watcher backed by catalog and engine. A nil logger disables
// logging. exclude is the same path-prefix exclusion list IndexRoot's crawl
// uses - new directories under an excluded prefix are not watched.
func New(catalog Catalog, engine Engine, exclude []string, log *zap.SugaredLogger) (*Watcher, error) {
	if catalog == nil {
		return nil, errors.New("watcher: catalog is nil")
	}

	if engine == nil {
		return nil, errors.New("watcher: engine is nil")
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:     fsw,
		catalog: catalog,
		engine:  engine,
		log:     log,
		exclude: append([]string(nil), exclude...),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)

	go w.run()

	return w, nil
}

// AddRecursive walks root and registers every directory under it (skipping
// hidden and excluded-prefix subtrees, same rules as Crawler.Crawl) with the
// underlying fsnotify watcher. fsnotify is not recursive on its own, so new
// subdirectories created later are picked up via handleEvent re-calling this
// on a Create event for a directory.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			w.log.Debugw("watch: skip directory after stat error", "path", path, "error", err)

			return nil
		}

		if !entry.IsDir() {
			return nil
		}

		if isHidden(entry.Name()) && path != root {
			return filepath.SkipDir
		}

		if hasExcludedPrefix(path, w.exclude) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			w.log.Errorw("watch: add directory failed", "path", path, "error", err)
		}

		return nil
	})
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// handle. Idempotent: a second call returns nil.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}

	close(w.done)
	w.wg.Wait()

	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.log.Errorw("watch: fsnotify error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	ctx := context.Background()
	path := pathnorm.Canonicalize(event.Name)

	if hasExcludedPrefix(path, w.exclude) {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.remove(ctx, path)

		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a deletion between the event firing and the stat.
			w.remove(ctx, path)

			return
		}

		w.log.Debugw("watch: skip event after stat error", "path", path, "error", err)

		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.AddRecursive(event.Name); err != nil {
				w.log.Errorw("watch: add new directory failed", "path", path, "error", err)
			}
		}

		return
	}

	name := filepath.Base(path)
	item := index.Item{
		Path:      path,
		Name:      name,
		LowerName: index.LowerASCII(name),
		IsDir:     false,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}

	if err := w.catalog.Upsert(ctx, item); err != nil {
		w.log.Errorw("watch: catalog upsert failed", "path", path, "error", err)

		return
	}

	if err := w.engine.Put(ctx, item); err != nil {
		w.log.Errorw("watch: engine put failed", "path", path, "error", err)
	}
}

func (w *Watcher) remove(ctx context.Context, path string) {
	if err := w.catalog.Delete(ctx, path); err != nil {
		w.log.Errorw("watch: catalog delete failed", "path", path, "error", err)
	}

	if err := w.engine.Remove(ctx, path); err != nil {
		w.log.Errorw("watch: engine remove failed", "path", path, "error", err)
	}
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
