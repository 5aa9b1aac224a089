package engine

import (
	"context"
	"fmt"

	"github.com/calvinalkan/errthang/pkg/index"
)

// Put records item in the overlay (shadowing the snapshot) and schedules a
// debounced rebuild.
func (e *Engine) Put(ctx context.Context, item index.Item) error {
	return e.submit(ctx, func() error {
		e.overlay.Put(item)
		e.publish(Event{Kind: EventIndexUpdated})
		e.scheduleRebuild()

		return nil
	})
}

// Remove tombstones path in the overlay and schedules a debounced rebuild.
func (e *Engine) Remove(ctx context.Context, path string) error {
	return e.submit(ctx, func() error {
		e.overlay.Remove(path)
		e.publish(Event{Kind: EventIndexUpdated})
		e.scheduleRebuild()

		return nil
	})
}

// RemovePrefix deletes every catalog record under prefix. Prefix removal is
// expensive to express as a snapshot+overlay operation (the overlay has no
// efficient way to shadow an unbounded range of snapshot entries), so
// instead of attempting prefix iteration over the snapshot, it deletes from
// the Catalog and forces an immediate full rebuild.
func (e *Engine) RemovePrefix(ctx context.Context, prefix string) error {
	err := e.submit(ctx, func() error {
		if err := e.catalog.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogError, err)
		}

		e.stopPendingRebuild()

		return nil
	})
	if err != nil {
		return err
	}

	return e.ForceRebuild(ctx)
}

// Clear discards the overlay, unmaps and removes the current snapshot, and
// returns the engine to its Uninitialized state. A subsequent ForceRebuild
// or IndexRoot is required to make it Ready again.
func (e *Engine) Clear(ctx context.Context) error {
	return e.submit(ctx, func() error {
		e.stopPendingRebuild()
		e.generation.Add(1)
		e.overlay.Reset()

		old := e.index.Swap(nil)
		if old != nil {
			_ = old.Close()
		}

		if err := removeIfExists(e.opts.SnapshotPath); err != nil {
			return fmt.Errorf("clear: remove snapshot: %w", err)
		}

		e.publish(Event{Kind: EventIndexUpdated})

		return nil
	})
}

// ForceRebuild bumps the generation token and performs an immediate,
// synchronous rebuild: drain the Catalog, write a new snapshot, and swap it
// in. Unlike the debounced path, it returns only once the new snapshot is
// live (or the attempt has failed).
func (e *Engine) ForceRebuild(ctx context.Context) error {
	var gen uint64

	err := e.submit(ctx, func() error {
		e.stopPendingRebuild()
		gen = e.generation.Add(1)

		return nil
	})
	if err != nil {
		return err
	}

	return e.doRebuild(ctx, gen)
}
