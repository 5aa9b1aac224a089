// Package index implements the hybrid static index half of errthang's
// search engine: a packed, memory-mapped record format (BinaryIndex), the
// byte-level primitives that operate on it (Scanner), and the writer that
// serializes a full item set into that format atomically (Writer).
//
// The package holds no reference to a catalog or filesystem event source;
// it only knows how to turn a slice of [Item] into bytes and back.
package index

import "time"

// Item is a single filesystem entry as carried through the index: a path,
// its final component, a precomputed ASCII-lowercased form of that
// component for case-insensitive matching, a directory flag, a size, and an
// optional modification time.
//
// The zero value of ModTime represents "absent" - it is never distinguished
// from the Unix epoch on round-trip through a snapshot.
type Item struct {
	Path      string
	Name      string
	LowerName string
	IsDir     bool
	Size      int64
	ModTime   time.Time
}

// SortKey names a field results can be ordered by.
type SortKey int

const (
	SortByName SortKey = iota
	SortByPath
	SortBySize
	SortByDate
)

// CompareResult is the outcome of comparing two orderable values.
type CompareResult int

const (
	Less    CompareResult = -1
	Equal   CompareResult = 0
	Greater CompareResult = 1
)

func fromSignedInt(n int) CompareResult {
	switch {
	case n < 0:
		return Less
	case n > 0:
		return Greater
	default:
		return Equal
	}
}

// lowerASCIIBytes returns a new byte slice with ASCII letters lowercased.
// Matches the snapshot's case-folding policy (§9 of the file-search design
// this package implements): byte-wise ASCII lowercasing, not full Unicode
// case folding.
func lowerASCIIBytes(s string) []byte {
	b := []byte(s)

	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return b
}

func lowerASCIIString(s string) string {
	return string(lowerASCIIBytes(s))
}

// LowerASCII exposes the package's case-folding policy to callers that build
// Items outside this package (the crawler, the catalog, the overlay's
// filesystem-event path): byte-wise ASCII lowercasing, never full Unicode
// case folding, so every producer of an Item.LowerName agrees bit-for-bit.
func LowerASCII(s string) string {
	return lowerASCIIString(s)
}

// toEpochSeconds converts t to the snapshot's on-disk modification-time
// representation: seconds since the Unix epoch as a float64, with the zero
// time ("absent") mapping to 0.
func toEpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}

	return float64(t.UnixNano()) / float64(time.Second)
}

// fromEpochSeconds is the inverse of toEpochSeconds. A stored value of
// exactly 0 is treated as "absent" and maps back to the zero time, per the
// snapshot format's explicit (documented) collision with the Unix epoch.
func fromEpochSeconds(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}

	return time.Unix(0, int64(seconds*float64(time.Second))).UTC()
}
