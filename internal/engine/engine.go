// Package engine implements the SearchEngine orchestrator: the single-writer
// actor that owns the current BinaryIndex snapshot, the DeltaOverlay, the
// generation token, and the debounced rebuild task, and that answers
// queries by merging the two.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/calvinalkan/errthang/internal/crawler"
	"github.com/calvinalkan/errthang/internal/overlay"
	"github.com/calvinalkan/errthang/pkg/fs"
	"github.com/calvinalkan/errthang/pkg/index"
)

const (
	defaultDebounceInterval     = 5 * time.Second
	defaultStartupFastPathLimit = 1000
)

// Catalog is the durable metadata store the engine rebuilds snapshots from.
// Matches internal/catalog.Catalog's public surface; any implementation of
// spec.md §6's five catalog operations satisfies it.
type Catalog interface {
	BulkInsert(ctx context.Context, items []index.Item) error
	ItemsSortedByName(ctx context.Context, limit int) ([]index.Item, error)
	Upsert(ctx context.Context, item index.Item) error
	Delete(ctx context.Context, path string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// crawlerCollaborator is the subset of *crawler.Crawler the engine drives
// directly.
type crawlerCollaborator interface {
	Crawl(ctx context.Context, root string, exclude []string, stillCurrent crawler.GenerationCheck) (int, error)
	Clear(ctx context.Context, prefix string) error
}

// Options configures an Engine.
type Options struct {
	// SnapshotPath is the on-disk location of the binary index file.
	SnapshotPath string
	// ExcludePrefixes are path prefixes IndexRoot's crawl skips.
	ExcludePrefixes []string
	// DebounceInterval is how long the engine waits after the last mutation
	// before rebuilding the snapshot. Zero means defaultDebounceInterval.
	DebounceInterval time.Duration
	// StartupFastPathLimit bounds the immediate fetch used to get the
	// engine ready before the full catalog has streamed in. Zero means
	// defaultStartupFastPathLimit.
	StartupFastPathLimit int
}

func (o Options) withDefaults() Options {
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = defaultDebounceInterval
	}

	if o.StartupFastPathLimit <= 0 {
		o.StartupFastPathLimit = defaultStartupFastPathLimit
	}

	return o
}

// Engine is the SearchEngine orchestrator. All mutating operations (Put,
// Remove, RemovePrefix, Clear, ForceRebuild) are serialized through a single
// actor goroutine; Search reads the current snapshot and overlay lock-free
// via atomics and the overlay's own RWMutex.
type Engine struct {
	opts    Options
	log     *zap.SugaredLogger
	catalog Catalog
	crawler crawlerCollaborator
	overlay *overlay.Overlay
	writer  *index.Writer

	closed     atomic.Bool
	index      atomic.Pointer[index.BinaryIndex]
	generation atomic.Uint64

	events chan Event

	ops  chan func()
	done chan struct{}
	wg   sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// New constructs an Engine and performs startup: it tries to open the
// existing snapshot at opts.SnapshotPath; if that fails, it fetches an
// immediate fast-path page from catalog so the engine is ready to serve
// (possibly incomplete) results right away, then streams the full catalog
// into a fresh snapshot in the background.
func New(ctx context.Context, opts Options, catalog Catalog, crawl crawlerCollaborator, log *zap.SugaredLogger) (*Engine, error) {
	if ctx == nil {
		return nil, errors.New("engine: context is nil")
	}

	if catalog == nil {
		return nil, errors.New("engine: catalog is nil")
	}

	if opts.SnapshotPath == "" {
		return nil, errors.New("engine: snapshot path is empty")
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &Engine{
		opts:    opts.withDefaults(),
		log:     log,
		catalog: catalog,
		crawler: crawl,
		overlay: overlay.New(),
		writer:  index.NewWriter(fs.NewReal()),
		events:  make(chan Event, eventsCapacity),
		ops:     make(chan func()),
		done:    make(chan struct{}),
	}

	e.wg.Add(1)

	go e.run()

	e.startup(ctx)

	return e, nil
}

// Close stops the actor, cancels any pending debounced rebuild, and
// releases the current snapshot's memory mapping. Idempotent; a second call
// returns ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	e.debounceMu.Lock()
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceMu.Unlock()

	close(e.done)
	e.wg.Wait()

	if bi := e.index.Load(); bi != nil {
		return bi.Close()
	}

	return nil
}

// Events returns the channel of lifecycle events. The channel is buffered;
// if the consumer falls behind, new events are dropped (logged at Debug)
// rather than blocking the actor.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) run() {
	defer e.wg.Done()

	for {
		select {
		case op := <-e.ops:
			op()
		case <-e.done:
			return
		}
	}
}

// submit enqueues f on the actor and blocks until it has run, returning its
// result. It respects both ctx cancellation and engine closure.
func (e *Engine) submit(ctx context.Context, f func() error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	resultCh := make(chan error, 1)

	op := func() {
		resultCh <- f()
	}

	select {
	case e.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) startup(ctx context.Context) {
	e.publish(Event{Kind: EventIndexLoadStarted})

	bi, err := index.Open(e.opts.SnapshotPath)
	if err == nil {
		e.index.Store(bi)
		e.publish(Event{Kind: EventIndexLoadFinished, ItemCount: bi.ItemCount()})

		return
	}

	if !errors.Is(err, index.ErrSnapshotAbsent) && !errors.Is(err, index.ErrSnapshotCorrupt) {
		e.log.Errorw("startup: unexpected snapshot open error", "error", err)
	}

	fastItems, fastErr := e.catalog.ItemsSortedByName(ctx, e.opts.StartupFastPathLimit)
	if fastErr != nil {
		e.log.Errorw("startup: fast-path fetch failed", "error", fastErr)
	} else if fastBI := e.writeAndOpen(fastItems); fastBI != nil {
		e.index.Store(fastBI)
		e.publish(Event{Kind: EventIndexLoadFinished, ItemCount: fastBI.ItemCount()})
	}

	gen := e.generation.Load()

	go func() {
		if err := e.doRebuild(context.Background(), gen); err != nil && !errors.Is(err, ErrCancelled) {
			e.log.Errorw("startup: background rebuild failed", "error", err)
		}
	}()
}

// writeAndOpen writes items as a snapshot and reopens it, logging (not
// returning) any failure - used by the startup fast path, where a write
// failure just means the engine stays in its current state a little longer.
func (e *Engine) writeAndOpen(items []index.Item) *index.BinaryIndex {
	if err := e.writer.Write(e.opts.SnapshotPath, items); err != nil {
		e.log.Errorw("write snapshot failed", "error", err)

		return nil
	}

	bi, err := index.Open(e.opts.SnapshotPath)
	if err != nil {
		e.log.Errorw("reopen snapshot after write failed", "error", err)

		return nil
	}

	return bi
}

// IndexRoot clears any previously indexed records under root, crawls it into
// the catalog, and forces a rebuild on success - the "Crawler requests a
// rebuild via the SearchEngine on completion" contract.
func (e *Engine) IndexRoot(ctx context.Context, root string) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}

	if e.crawler == nil {
		return 0, errors.New("engine: no crawler configured")
	}

	if err := e.crawler.Clear(ctx, root); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogError, err)
	}

	gen := e.generation.Load()
	stillCurrent := func() bool { return e.generation.Load() == gen }

	n, err := e.crawler.Crawl(ctx, root, e.opts.ExcludePrefixes, stillCurrent)
	if err != nil {
		return n, err
	}

	if err := e.ForceRebuild(ctx); err != nil {
		return n, err
	}

	return n, nil
}

// CancelIndexing bumps the generation token. In-flight crawls and rebuilds
// that check the token at their next boundary abort without committing.
func (e *Engine) CancelIndexing() {
	e.generation.Add(1)
}

func (e *Engine) scheduleRebuild() {
	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}

	e.debounceTimer = time.AfterFunc(e.opts.DebounceInterval, func() {
		gen := e.generation.Add(1)

		if err := e.doRebuild(context.Background(), gen); err != nil && !errors.Is(err, ErrCancelled) {
			e.log.Errorw("debounced rebuild failed", "error", err)

			if errors.Is(err, ErrWriteFailed) && !e.closed.Load() {
				e.scheduleRebuild()
			}
		}
	})
}

func (e *Engine) stopPendingRebuild() {
	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
}

// removeIfExists wraps os.Remove so a missing snapshot file (Clear called
// twice, or never rebuilt) is not an error.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
