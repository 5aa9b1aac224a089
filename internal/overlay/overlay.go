// Package overlay implements the in-memory delta that shadows a BinaryIndex
// snapshot between rebuilds: recent adds/updates and tombstoned paths.
package overlay

import (
	"sync"

	"github.com/calvinalkan/errthang/pkg/index"
)

// Overlay holds mutations (path -> Item) and tombstones (paths removed since
// the last snapshot) observed after a snapshot was taken. A path is never in
// both sets at once: Put clears any tombstone for path, Remove clears any
// mutation for path.
//
// Overlay is a performance structure, not a source of truth - it is never
// persisted and a process restart discards it; the next rebuild against the
// Catalog is authoritative.
type Overlay struct {
	mu         sync.RWMutex
	mutations  map[string]index.Item
	tombstones map[string]struct{}
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{
		mutations:  make(map[string]index.Item),
		tombstones: make(map[string]struct{}),
	}
}

// Put records item as a pending mutation, shadowing the snapshot entry (if
// any) for item.Path. Clears any tombstone previously recorded for the path.
func (o *Overlay) Put(item index.Item) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.tombstones, item.Path)
	o.mutations[item.Path] = item
}

// Remove tombstones path: queries will no longer surface it even if it is
// still present in the snapshot. Clears any pending mutation for the path.
func (o *Overlay) Remove(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.mutations, path)
	o.tombstones[path] = struct{}{}
}

// IsTombstoned reports whether path has been removed since the last
// snapshot. The engine's merge does not call it; it builds its shadowed-path
// set from Tombstones and MutationPaths instead.
func (o *Overlay) IsTombstoned(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, tombstoned := o.tombstones[path]

	return tombstoned
}

// Lookup returns the pending mutation for path, if any.
func (o *Overlay) Lookup(path string) (index.Item, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	item, ok := o.mutations[path]

	return item, ok
}

// Tombstones returns a snapshot copy of every tombstoned path.
func (o *Overlay) Tombstones() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	paths := make([]string, 0, len(o.tombstones))
	for path := range o.tombstones {
		paths = append(paths, path)
	}

	return paths
}

// MutationPaths returns a snapshot copy of every path with a pending
// mutation. Used alongside Tombstones to compute the full set of paths that
// shadow a snapshot entry - a mutation shadows the snapshot just as much as
// a tombstone does, it just replaces rather than removes.
func (o *Overlay) MutationPaths() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	paths := make([]string, 0, len(o.mutations))
	for path := range o.mutations {
		paths = append(paths, path)
	}

	return paths
}

// Mutations returns a snapshot copy of every pending mutation. The returned
// slice is safe to sort and scan without holding the overlay's lock; it does
// not observe mutations made after the call returns.
func (o *Overlay) Mutations() []index.Item {
	o.mu.RLock()
	defer o.mu.RUnlock()

	items := make([]index.Item, 0, len(o.mutations))
	for _, item := range o.mutations {
		items = append(items, item)
	}

	return items
}

// Len returns the number of pending mutations.
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.mutations)
}

// TombstoneCount returns the number of tombstoned paths.
func (o *Overlay) TombstoneCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.tombstones)
}

// CountSnapshotTombstoneHits reports how many of the overlay's tombstoned
// paths are present in index, per SearchEngine's total-count contract
// (snapshot_count + overlay_adds - overlay_tombstone_hits_in_snapshot).
func (o *Overlay) CountSnapshotTombstoneHits(contains func(path string) bool) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	hits := 0

	for path := range o.tombstones {
		if contains(path) {
			hits++
		}
	}

	return hits
}

// Reset discards all mutations and tombstones. Only the engine's Clear()
// calls it; neither a prefix removal nor the ordinary rebuild path does -
// rebuild preserves the overlay (read-your-writes across a rebuild).
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.mutations = make(map[string]index.Item)
	o.tombstones = make(map[string]struct{})
}

// GC prunes mutations whose (path, size, mtime) already match what
// inSnapshot reports for that path - the overlay has caught up with the
// snapshot for that entry and keeping it around just wastes memory. Not
// required for correctness (spec §4.6); a best-effort size-control pass.
func (o *Overlay) GC(inSnapshot func(item index.Item) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for path, item := range o.mutations {
		if inSnapshot(item) {
			delete(o.mutations, path)
		}
	}
}
