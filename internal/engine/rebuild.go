package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/calvinalkan/errthang/pkg/index"
)

// doRebuild drains the Catalog and writes a new snapshot. The drain and
// write happen outside the actor so they don't block concurrent Put/Remove/
// Search calls; only the final pointer swap (and the generation check that
// guards it) is serialized through the actor, so a superseded rebuild never
// clobbers a newer one.
//
// The overlay is never cleared here: mutations that arrived after the drain
// started may be missing from the new snapshot, and dropping them from the
// overlay would violate read-your-writes. Overlay entries stay until Clear;
// once a rebuild has picked a mutation up from the Catalog, the overlay copy
// keeps shadowing the identical snapshot record.
func (e *Engine) doRebuild(ctx context.Context, gen uint64) error {
	items, err := e.catalog.ItemsSortedByName(ctx, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogError, err)
	}

	if e.generation.Load() != gen {
		return ErrCancelled
	}

	if err := e.writer.Write(e.opts.SnapshotPath, items); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	bi, err := index.Open(e.opts.SnapshotPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	swapErr := e.submit(ctx, func() error {
		if e.generation.Load() != gen {
			_ = bi.Close()

			return ErrCancelled
		}

		old := e.index.Swap(bi)
		if old != nil {
			_ = old.Close()
		}

		e.publish(Event{Kind: EventIndexUpdated, ItemCount: bi.ItemCount()})

		return nil
	})

	if swapErr != nil && !errors.Is(swapErr, ErrCancelled) {
		// submit itself failed (closed/ctx) before the op ran; the op never
		// got a chance to close bi.
		_ = bi.Close()
	}

	return swapErr
}
