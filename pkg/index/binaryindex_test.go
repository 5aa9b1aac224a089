package index_test

import (
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/errthang/pkg/fs"
	"github.com/calvinalkan/errthang/pkg/index"
)

func TestBinaryIndex_Open_ReturnsErrSnapshotAbsent(t *testing.T) {
	t.Parallel()

	_, err := index.Open(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	if err != index.ErrSnapshotAbsent {
		t.Fatalf("Open err=%v, want ErrSnapshotAbsent", err)
	}
}

func TestBinaryIndex_Open_RejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := fs.NewReal().WriteFile(path, make([]byte, 32), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := index.Open(path)
	if !errors.Is(err, index.ErrSnapshotCorrupt) {
		t.Fatalf("Open err=%v, want ErrSnapshotCorrupt", err)
	}
}

func TestBinaryIndex_Open_RejectsTruncatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tiny.bin")
	if err := fs.NewReal().WriteFile(path, []byte("ER"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := index.Open(path)
	if !errors.Is(err, index.ErrSnapshotCorrupt) {
		t.Fatalf("Open err=%v, want ErrSnapshotCorrupt", err)
	}
}

// S1 from the spec's end-to-end scenarios: basic substring match across
// three items all containing "a".
func TestBinaryIndex_Search_BasicSubstring(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "Alpha.txt", Path: "/a/Alpha.txt"},
		{Name: "Beta.log", Path: "/a/Beta.log"},
		{Name: "Gamma.md", Path: "/b/Gamma.md"},
	})

	results := idx.Search("a")

	names := materializeNames(t, idx, results)
	want := []string{"Alpha.txt", "Beta.log", "Gamma.md"}

	if !equalStrings(names, want) {
		t.Fatalf("Search(\"a\") names=%v, want %v", names, want)
	}
}

func TestBinaryIndex_Search_CaseInsensitive(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "Report.PDF", Path: "/docs/Report.PDF"},
	})

	results := idx.Search("REPORT")
	if len(results) != 1 {
		t.Fatalf("Search(\"REPORT\")=%v, want one match", results)
	}
}

func TestBinaryIndex_Search_MultiWordQueryIsTokenAND(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "foo_bar.txt", Path: "/a/foo_bar.txt"},
		{Name: "foo_only.txt", Path: "/a/foo_only.txt"},
		{Name: "bar_only.txt", Path: "/a/bar_only.txt"},
	})

	results := idx.Search("foo bar")

	names := materializeNames(t, idx, results)
	if !equalStrings(names, []string{"foo_bar.txt"}) {
		t.Fatalf("Search(\"foo bar\") names=%v, want only foo_bar.txt", names)
	}
}

func TestBinaryIndex_Search_QueryLongerThanEveryName_ReturnsEmpty(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "a.txt", Path: "/a.txt"},
	})

	results := idx.Search("this-query-is-way-too-long-to-match-anything")
	if len(results) != 0 {
		t.Fatalf("Search=%v, want empty", results)
	}
}

func TestBinaryIndex_Search_ExactNameMatch(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "exact.txt", Path: "/exact.txt"},
		{Name: "other.txt", Path: "/other.txt"},
	})

	results := idx.Search("exact.txt")
	if len(results) != 1 {
		t.Fatalf("Search(\"exact.txt\")=%v, want one match", results)
	}
}

// S4: sort correctness over sizes.
func TestBinaryIndex_Sort_BySize(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "a.txt", Path: "/a.txt", Size: 10},
		{Name: "b.txt", Path: "/b.txt", Size: 2},
		{Name: "c.txt", Path: "/c.txt", Size: 50},
	})

	indices := idx.Search("")
	idx.Sort(indices, index.SortBySize, false)

	var sizes []int64

	for _, i := range indices {
		item, err := idx.Materialize(i)
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}

		sizes = append(sizes, item.Size)
	}

	want := []int64{50, 10, 2}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("sizes=%v, want %v", sizes, want)
		}
	}
}

func TestBinaryIndex_Sort_AllKeysBothDirections(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "b.txt", Path: "/z/b.txt", Size: 20, ModTime: epoch(200)},
		{Name: "a.txt", Path: "/y/a.txt", Size: 30, ModTime: epoch(100)},
		{Name: "c.txt", Path: "/x/c.txt", Size: 10, ModTime: epoch(300)},
	})

	cases := []struct {
		key       index.SortKey
		ascending bool
		wantNames []string
	}{
		{index.SortByName, true, []string{"a.txt", "b.txt", "c.txt"}},
		{index.SortByName, false, []string{"c.txt", "b.txt", "a.txt"}},
		{index.SortByPath, true, []string{"c.txt", "a.txt", "b.txt"}},
		{index.SortByPath, false, []string{"b.txt", "a.txt", "c.txt"}},
		{index.SortBySize, true, []string{"c.txt", "b.txt", "a.txt"}},
		{index.SortBySize, false, []string{"a.txt", "b.txt", "c.txt"}},
		{index.SortByDate, true, []string{"a.txt", "b.txt", "c.txt"}},
		{index.SortByDate, false, []string{"c.txt", "b.txt", "a.txt"}},
	}

	for _, tc := range cases {
		indices := idx.Search("")
		idx.Sort(indices, tc.key, tc.ascending)

		names := materializeNames(t, idx, indices)
		if !equalStrings(names, tc.wantNames) {
			t.Fatalf("key=%v ascending=%v names=%v, want %v", tc.key, tc.ascending, names, tc.wantNames)
		}
	}
}

// S5: parallel scan equivalence with a single-threaded linear scan, over a
// larger synthetic snapshot.
func TestBinaryIndex_Search_ParallelEquivalentToLinearScan(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	items := make([]index.Item, 500)
	for i := range items {
		items[i] = index.Item{
			Name: randomName(rng, i),
			Path: "/synthetic/" + randomName(rng, i),
		}
	}

	idx := writeAndOpen(t, items)

	parallel := idx.Search("5")

	linear := linearScan(t, idx, "5")

	parallelSet := toSet(parallel)
	linearSet := toSet(linear)

	if len(parallelSet) != len(linearSet) {
		t.Fatalf("len(parallel)=%d, len(linear)=%d", len(parallelSet), len(linearSet))
	}

	for k := range parallelSet {
		if !linearSet[k] {
			t.Fatalf("parallel result %d missing from linear scan", k)
		}
	}

	if !equalInt32(parallel, linear) {
		t.Fatalf("parallel and linear scans differ in order under natural ordering")
	}
}

func TestBinaryIndex_Materialize_RoundTripsItemFields(t *testing.T) {
	t.Parallel()

	want := index.Item{
		Name:      "report.PDF",
		Path:      "/docs/report.PDF",
		LowerName: "report.pdf",
		Size:      4096,
		ModTime:   epoch(12345),
	}

	idx := writeAndOpen(t, []index.Item{want})

	got, err := idx.Materialize(0)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Materialize(0) mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryIndex_FindPath(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "a.txt", Path: "/root/a.txt"},
		{Name: "b.txt", Path: "/root/b.txt"},
	})

	i, ok := idx.FindPath("/root/b.txt")
	if !ok {
		t.Fatalf("FindPath: not found")
	}

	item, err := idx.Materialize(i)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if item.Path != "/root/b.txt" {
		t.Fatalf("Materialize(FindPath).Path=%q, want /root/b.txt", item.Path)
	}

	_, ok = idx.FindPath("/root/missing.txt")
	if ok {
		t.Fatalf("FindPath: found a path that shouldn't exist")
	}
}

func TestBinaryIndex_Compare_AgreesWithSort(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "m.txt", Path: "/m.txt", Size: 5},
	})

	bigger := index.Item{Name: "m.txt", Path: "/m.txt", Size: 10}
	smaller := index.Item{Name: "m.txt", Path: "/m.txt", Size: 1}

	c, err := idx.Compare(0, bigger, index.SortBySize)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if c != index.Less {
		t.Fatalf("Compare(record=5, item=10)=%v, want Less", c)
	}

	c, err = idx.Compare(0, smaller, index.SortBySize)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if c != index.Greater {
		t.Fatalf("Compare(record=5, item=1)=%v, want Greater", c)
	}
}

func TestBinaryIndex_Materialize_OutOfRange(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{{Name: "a.txt", Path: "/a.txt"}})

	_, err := idx.Materialize(5)
	if err == nil {
		t.Fatalf("Materialize(5): got nil error, want ErrIndexOutOfRange")
	}
}

func TestBinaryIndex_Search_AllIndicesStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	idx := writeAndOpen(t, []index.Item{
		{Name: "a.txt", Path: "/a.txt"},
		{Name: "b.txt", Path: "/b.txt"},
		{Name: "c.txt", Path: "/c.txt"},
	})

	results := idx.Search("")

	for i := 1; i < len(results); i++ {
		if results[i-1] >= results[i] {
			t.Fatalf("results=%v not strictly increasing", results)
		}
	}
}

func epoch(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func materializeNames(t *testing.T, idx *index.BinaryIndex, indices []int32) []string {
	t.Helper()

	names := make([]string, 0, len(indices))

	for _, i := range indices {
		item, err := idx.Materialize(i)
		if err != nil {
			t.Fatalf("Materialize(%d): %v", i, err)
		}

		names = append(names, item.Name)
	}

	return names
}

func linearScan(t *testing.T, idx *index.BinaryIndex, query string) []int32 {
	t.Helper()

	var out []int32

	for i := int32(0); i < int32(idx.ItemCount()); i++ {
		item, err := idx.Materialize(i)
		if err != nil {
			t.Fatalf("Materialize(%d): %v", i, err)
		}

		if strings.Contains(item.LowerName, query) {
			out = append(out, i)
		}
	}

	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func equalInt32(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func toSet(indices []int32) map[int32]bool {
	set := make(map[int32]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}

	return set
}

func randomName(rng *rand.Rand, i int) string {
	letters := "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, 6+rng.Intn(10))
	for j := range b {
		b[j] = letters[rng.Intn(len(letters))]
	}

	return string(b) + ".txt"
}
