package index_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calvinalkan/errthang/pkg/fs"
	"github.com/calvinalkan/errthang/pkg/index"
)

// itemsFromFuzzBytes deterministically derives a small item set from
// arbitrary fuzz bytes: each chunk seeds one item's size, mtime and name, so
// malformed or non-UTF8 byte runs exercise the writer's string pool and the
// reader's replacement-character decoding the same way unusual real
// filenames would.
func itemsFromFuzzBytes(fuzzBytes []byte) []index.Item {
	const (
		chunkSize = 9
		maxItems  = 64
	)

	var items []index.Item

	for i := 0; i+2 <= len(fuzzBytes) && len(items) < maxItems; i += chunkSize {
		end := i + chunkSize
		if end > len(fuzzBytes) {
			end = len(fuzzBytes)
		}

		chunk := fuzzBytes[i:end]

		name := string(chunk[2:])
		if name == "" {
			name = "unnamed"
		}

		items = append(items, index.Item{
			Name:    name,
			Path:    "/fuzz/" + name,
			Size:    int64(chunk[0]),
			ModTime: time.Unix(int64(chunk[1])*1000, 0).UTC(),
			IsDir:   chunk[0]%7 == 0,
		})
	}

	return items
}

// FuzzBinaryIndex_WriteOpenRoundTrip writes a fuzz-derived item set through
// Writer, opens the resulting snapshot, and checks the round-trip every
// Index/Watch rebuild depends on: the record count survives, every record
// materializes without error, and searching for each written item's own
// lowercased name always finds that item's record.
func FuzzBinaryIndex_WriteOpenRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte("\x00\x00a"))
	f.Add([]byte("\x05\x0cReport Q3.PDF\x01\x02notes.txt\xff\xfe\x80\x81"))

	f.Fuzz(func(t *testing.T, fuzzBytes []byte) {
		items := itemsFromFuzzBytes(fuzzBytes)

		path := filepath.Join(t.TempDir(), "fuzz.bin")

		w := index.NewWriter(fs.NewReal())
		if err := w.Write(path, items); err != nil {
			t.Fatalf("Write: %v", err)
		}

		idx, err := index.Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = idx.Close() }()

		if idx.ItemCount() != len(items) {
			t.Fatalf("ItemCount() = %d, want %d", idx.ItemCount(), len(items))
		}

		for i := 0; i < idx.ItemCount(); i++ {
			if _, err := idx.Materialize(int32(i)); err != nil {
				t.Fatalf("Materialize(%d): %v", i, err)
			}
		}

		// Queries use each input item's lowercased name, not a materialized
		// one: Materialize replaces invalid UTF-8, while Search matches the
		// raw bytes the writer stored.
		for _, item := range items {
			lower := index.LowerASCII(item.Name)
			wantPath := strings.ToValidUTF8(item.Path, "�")
			found := false

			for _, r := range idx.Search(lower) {
				got, err := idx.Materialize(r)
				if err != nil {
					t.Fatalf("Materialize(%d): %v", r, err)
				}

				if got.Path == wantPath {
					found = true

					break
				}
			}

			if !found {
				t.Fatalf("Search(%q) did not find the record written for path %q", lower, item.Path)
			}
		}
	})
}

// FuzzBinaryIndex_SortIsTotalOrder writes a fuzz-derived item set, sorts all
// record indices by every SortKey in both directions, and checks the result
// is monotonic under Compare - no panics and no scrambled order regardless
// of what names, sizes or mtimes fuzzing derives.
func FuzzBinaryIndex_SortIsTotalOrder(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte("\x00\x00aaa\x01\x01bbb\x02\x02ccc"))

	f.Fuzz(func(t *testing.T, fuzzBytes []byte) {
		items := itemsFromFuzzBytes(fuzzBytes)
		if len(items) == 0 {
			return
		}

		path := filepath.Join(t.TempDir(), "fuzz.bin")

		w := index.NewWriter(fs.NewReal())
		if err := w.Write(path, items); err != nil {
			t.Fatalf("Write: %v", err)
		}

		idx, err := index.Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = idx.Close() }()

		keys := []index.SortKey{index.SortByName, index.SortByPath, index.SortBySize, index.SortByDate}

		for _, key := range keys {
			for _, ascending := range []bool{true, false} {
				indices := make([]int32, idx.ItemCount())
				for i := range indices {
					indices[i] = int32(i)
				}

				idx.Sort(indices, key, ascending)

				for i := 1; i < len(indices); i++ {
					prev, err := idx.Materialize(indices[i-1])
					if err != nil {
						t.Fatalf("Materialize: %v", err)
					}

					result, err := idx.Compare(indices[i], prev, key)
					if err != nil {
						t.Fatalf("Compare: %v", err)
					}

					if ascending && result == index.Less {
						t.Fatalf("ascending sort by key %d not monotonic at position %d", key, i)
					}

					if !ascending && result == index.Greater {
						t.Fatalf("descending sort by key %d not monotonic at position %d", key, i)
					}
				}
			}
		}
	})
}
