package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/calvinalkan/errthang/internal/overlay"
	"github.com/calvinalkan/errthang/pkg/index"
)

// SearchRequest describes one query against the engine's current snapshot
// plus delta overlay.
type SearchRequest struct {
	Query     string
	Key       index.SortKey
	Ascending bool
	// Limit truncates the result; Limit <= 0 means unlimited.
	Limit int
}

// SearchResult is the virtual result vector described in spec.md §4.6:
// non-negative entries index into the current snapshot; negative entries
// are the bitwise-NOT of a position in Overlay, the per-query overlay-items
// vector carried alongside so Materialize never needs a second round trip.
type SearchResult struct {
	Entries    []int64
	TotalCount int
	Overlay    []index.Item
}

// Search merges BinaryIndex.Search's candidate scan with the overlay's
// token-AND-matched mutations, per spec.md §4.6's seven-step algorithm, and
// returns a result vector truncated to req.Limit.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if e.closed.Load() {
		return SearchResult{}, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}

	bi := e.index.Load()
	if bi == nil {
		return SearchResult{}, nil
	}

	// 1. Index-scan.
	candidates := bi.Search(req.Query)

	// 2. Filter tombstones (and paths the overlay has a pending update for -
	// those are shadowed exactly like a tombstone, they just resurface
	// through the overlay side of the merge instead of being dropped).
	if e.overlay.TombstoneCount() > 0 || e.overlay.Len() > 0 {
		candidates = filterShadowed(bi, e.overlay, candidates)
	}

	// 3. Sort candidates by the requested key.
	bi.Sort(candidates, req.Key, req.Ascending)

	// 4. Filter and sort the overlay.
	overlayItems := matchOverlay(e.overlay, req.Query)
	sortOverlayItems(overlayItems, req.Key, req.Ascending)

	// 5/6. Merge, encoding the result as a virtual vector.
	merged := mergeResults(bi, candidates, overlayItems, req.Key, req.Ascending)

	total := len(merged)

	// 7. Truncate to limit.
	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	return SearchResult{Entries: merged, TotalCount: total, Overlay: overlayItems}, nil
}

// Materialize decodes entry into an Item. Non-negative entries come from
// the snapshot that was current at search time; negative entries index into
// overlayItems (the SearchResult.Overlay vector from the same call). A
// malformed entry returns an error rather than panicking.
func (e *Engine) Materialize(entry int64, overlayItems []index.Item) (index.Item, error) {
	if entry >= 0 {
		bi := e.index.Load()
		if bi == nil {
			return index.Item{}, errMaterializeNoSnapshot
		}

		return bi.Materialize(int32(entry))
	}

	pos := int(^entry)
	if pos < 0 || pos >= len(overlayItems) {
		return index.Item{}, errMaterializeOutOfRange
	}

	return overlayItems[pos], nil
}

// filterShadowed drops snapshot candidates whose path has a pending overlay
// entry - tombstoned (removed) or mutated (updated) - since both cases
// resurface through the overlay side of the merge instead, not the
// snapshot's stale copy.
func filterShadowed(bi *index.BinaryIndex, ov *overlay.Overlay, candidates []int32) []int32 {
	shadowed := make(map[int32]struct{})

	mark := func(path string) {
		if idx, ok := bi.FindPath(path); ok {
			shadowed[idx] = struct{}{}
		}
	}

	for _, path := range ov.Tombstones() {
		mark(path)
	}

	for _, path := range ov.MutationPaths() {
		mark(path)
	}

	if len(shadowed) == 0 {
		return candidates
	}

	filtered := candidates[:0]

	for _, idx := range candidates {
		if _, hidden := shadowed[idx]; !hidden {
			filtered = append(filtered, idx)
		}
	}

	return filtered
}

// matchOverlay implements the overlay's token-AND matching (Open Question 1
// of the design this package implements): an item matches query if its
// lowercased name contains every whitespace-separated token of the
// lowercased query. An empty query has zero tokens and matches everything.
func matchOverlay(ov *overlay.Overlay, query string) []index.Item {
	tokens := strings.Fields(index.LowerASCII(query))

	mutations := ov.Mutations()
	matched := make([]index.Item, 0, len(mutations))

	for _, item := range mutations {
		if matchesAllTokens(overlayLowerName(item), tokens) {
			matched = append(matched, item)
		}
	}

	return matched
}

func overlayLowerName(item index.Item) string {
	if item.LowerName != "" {
		return item.LowerName
	}

	return index.LowerASCII(item.Name)
}

func matchesAllTokens(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}

	return true
}

func sortOverlayItems(items []index.Item, key index.SortKey, ascending bool) {
	sort.Slice(items, func(i, j int) bool {
		return index.LessItems(items[i], items[j], key, ascending)
	})
}

// mergeResults is the two-pointer merge of the sorted snapshot indices with
// the sorted overlay items: at each step it compares the snapshot record at
// snapshotIdx[i] against the overlay item at overlayItems[j] and emits
// whichever comes first under (key, ascending), the snapshot side winning
// ties. bi.Compare always reports natural (ascending) order, so a Compare result of Less means "snapshot is smaller" regardless
// of the requested direction; which side that means to emit first depends
// on ascending.
func mergeResults(bi *index.BinaryIndex, snapshotIdx []int32, overlayItems []index.Item, key index.SortKey, ascending bool) []int64 {
	merged := make([]int64, 0, len(snapshotIdx)+len(overlayItems))

	i, j := 0, 0

	for i < len(snapshotIdx) && j < len(overlayItems) {
		cmp, err := bi.Compare(snapshotIdx[i], overlayItems[j], key)
		if err != nil {
			// A stale index vector pointing past the current snapshot -
			// drop it rather than let a malformed entry derail the merge.
			i++

			continue
		}

		takeSnapshot := cmp == index.Equal
		if !takeSnapshot {
			if ascending {
				takeSnapshot = cmp == index.Less
			} else {
				takeSnapshot = cmp == index.Greater
			}
		}

		if takeSnapshot {
			merged = append(merged, int64(snapshotIdx[i]))
			i++
		} else {
			merged = append(merged, int64(^j))
			j++
		}
	}

	for ; i < len(snapshotIdx); i++ {
		merged = append(merged, int64(snapshotIdx[i]))
	}

	for ; j < len(overlayItems); j++ {
		merged = append(merged, int64(^j))
	}

	return merged
}
