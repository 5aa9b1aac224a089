package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

var snapshotMagic = [4]byte{'E', 'R', 'R', 'T'}

const snapshotVersion int32 = 2

// BinaryIndex owns a memory-mapped snapshot file for its lifetime. It
// exposes read-only item lookup, parallel substring search, sorting, and
// single-record comparison against a heap Item.
//
// The mapped file is immutable for the lifetime of a BinaryIndex, so all
// read methods are safe for concurrent use by multiple goroutines. Close is
// not.
type BinaryIndex struct {
	mu     sync.Mutex
	data   []byte
	count  int
	closed bool
}

// Open memory-maps the snapshot file at path read-only and validates its
// header: magic "ERRT", version 2, and a record count consistent with file
// size. Returns ErrSnapshotAbsent if the file does not exist, or
// ErrSnapshotCorrupt if any header check fails.
func Open(path string) (*BinaryIndex, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotAbsent
		}

		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	size := info.Size()
	if size < headerSize {
		return nil, fmt.Errorf("%w: file smaller than header", ErrSnapshotCorrupt)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap snapshot: %w", err)
	}

	if !bytes.Equal(data[0:4], snapshotMagic[:]) {
		_ = syscall.Munmap(data)

		return nil, fmt.Errorf("%w: bad magic", ErrSnapshotCorrupt)
	}

	version := int32(binary.LittleEndian.Uint32(data[4:8]))
	if version != snapshotVersion {
		_ = syscall.Munmap(data)

		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotCorrupt, version, snapshotVersion)
	}

	count := readI64(data, 8)
	if count < 0 {
		_ = syscall.Munmap(data)

		return nil, fmt.Errorf("%w: negative record count %d", ErrSnapshotCorrupt, count)
	}

	minSize := int64(headerSize) + count*int64(recordStride)
	if size < minSize {
		_ = syscall.Munmap(data)

		return nil, fmt.Errorf("%w: file size %d too small for %d records", ErrSnapshotCorrupt, size, count)
	}

	return &BinaryIndex{data: data, count: int(count)}, nil
}

// Close unmaps the snapshot file. Idempotent.
func (idx *BinaryIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}

	idx.closed = true

	if len(idx.data) == 0 {
		return nil
	}

	return syscall.Munmap(idx.data)
}

// ItemCount returns the number of records in the snapshot.
func (idx *BinaryIndex) ItemCount() int {
	return idx.count
}

// Search lowercases query (ASCII-only), splits it into whitespace-separated
// tokens, and scans the full record range in parallel across GOMAXPROCS
// contiguous partitions for names matching every token (token-AND, the same
// rule the delta overlay applies to its own mutations), concatenating
// results in partition order. Because partitions are contiguous and each
// partition's matches come out in ascending order, the concatenation is
// globally ascending by index - equivalently, the snapshot's natural
// name-sorted order. A query with zero tokens returns [0, count) in natural
// order.
func (idx *BinaryIndex) Search(query string) []int32 {
	fields := strings.Fields(lowerASCIIString(query))
	tokens := make([][]byte, len(fields))

	for i, f := range fields {
		tokens[i] = []byte(f)
	}

	count := idx.count

	if count == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > count {
		workers = count
	}

	if workers < 1 {
		workers = 1
	}

	ranges := partitionRanges(count, workers)
	results := make([][]int32, len(ranges))

	var g errgroup.Group

	for p, r := range ranges {
		p, r := p, r

		g.Go(func() error {
			results[p] = Scan(idx.data, headerSize, recordStride, r[0], r[1], tokens)

			return nil
		})
	}

	// Scan never errors; errgroup here is purely a bounded fan-out/join
	// primitive, not error propagation.
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}

	out := make([]int32, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	return out
}

// partitionRanges splits [0, count) into up to workers contiguous,
// near-equal ranges.
func partitionRanges(count, workers int) [][2]int {
	ranges := make([][2]int, 0, workers)

	base := count / workers
	rem := count % workers
	start := 0

	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}

		end := start + size
		if end > start {
			ranges = append(ranges, [2]int{start, end})
		}

		start = end
	}

	return ranges
}

// Materialize decodes the record at i plus its string-pool bytes into a
// heap Item. Invalid UTF-8 in name/path/lower-name is replaced with the
// Unicode replacement character.
func (idx *BinaryIndex) Materialize(i int32) (Item, error) {
	if i < 0 || int(i) >= idx.count {
		return Item{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, idx.count)
	}

	recOff := recordOffset(headerSize, recordStride, int(i))

	name := decodeUTF8(fieldString(idx.data, recOff, offNameOffset, offNameLength))
	path := decodeUTF8(fieldString(idx.data, recOff, offPathOffset, offPathLength))
	lowerName := decodeUTF8(fieldString(idx.data, recOff, offLowerNameOffset, offLowerNameLength))

	size := readI64(idx.data, recOff+offSize)
	modSeconds := readF64(idx.data, recOff+offModTime)
	flags := idx.data[recOff+offFlags]

	return Item{
		Path:      path,
		Name:      name,
		LowerName: lowerName,
		IsDir:     flags&flagIsDir != 0,
		Size:      size,
		ModTime:   fromEpochSeconds(modSeconds),
	}, nil
}

func decodeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// FindPath returns the snapshot index of path, or false if absent.
func (idx *BinaryIndex) FindPath(path string) (int32, bool) {
	i := LookupPath(idx.data, headerSize, recordStride, idx.count, []byte(path))
	if i < 0 {
		return 0, false
	}

	return int32(i), true
}

// Sort sorts indices in place by key/ascending over this snapshot's records.
func (idx *BinaryIndex) Sort(indices []int32, key SortKey, ascending bool) {
	SortIndices(indices, idx.data, headerSize, recordStride, key, ascending)
}

// Compare compares the record at i against item on the given key, on the
// same byte-lexicographic basis SortIndices uses, so merges between
// snapshot indices and overlay items agree bit-for-bit.
func (idx *BinaryIndex) Compare(i int32, item Item, key SortKey) (CompareResult, error) {
	if i < 0 || int(i) >= idx.count {
		return Equal, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, idx.count)
	}

	recOff := recordOffset(headerSize, recordStride, int(i))

	switch key {
	case SortByName:
		return fromSignedInt(bytes.Compare(fieldString(idx.data, recOff, offNameOffset, offNameLength), []byte(item.Name))), nil
	case SortByPath:
		return fromSignedInt(bytes.Compare(fieldString(idx.data, recOff, offPathOffset, offPathLength), []byte(item.Path))), nil
	case SortBySize:
		return compareInt64(readI64(idx.data, recOff+offSize), item.Size), nil
	case SortByDate:
		return compareFloat64(readF64(idx.data, recOff+offModTime), toEpochSeconds(item.ModTime)), nil
	default:
		return Equal, nil
	}
}
