package index

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	"github.com/calvinalkan/errthang/pkg/fs"
)

// Writer serializes a full item set to the on-disk binary snapshot format
// atomically: sort by name, build the string pool, emit header + records +
// pool, then write via a temp-file-plus-rename so the destination is never
// observed partially written.
type Writer struct {
	atomic *fs.AtomicWriter
}

// NewWriter creates a Writer that writes snapshots through fsys.
func NewWriter(fsys fs.FS) *Writer {
	return &Writer{atomic: fs.NewAtomicWriter(fsys)}
}

type stringRef struct {
	offset uint32
	length uint32
}

// Write serializes items to path. items is sorted by Name (byte-
// lexicographic, per Go string comparison), with Path as a secondary key
// for a deterministic tiebreak across rebuilds; the input slice is not
// mutated. Strings are not deduplicated in the pool: a simpler writer and
// faster linear scans are preferred over a smaller file.
func (w *Writer) Write(path string, items []Item) error {
	sorted := make([]Item, len(items))
	copy(sorted, items)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}

		return sorted[i].Path < sorted[j].Path
	})

	poolBase := uint32(headerSize + len(sorted)*recordStride)

	var pool bytes.Buffer

	appendString := func(s string) stringRef {
		ref := stringRef{offset: poolBase + uint32(pool.Len()), length: uint32(len(s))}
		pool.WriteString(s)

		return ref
	}

	nameRefs := make([]stringRef, len(sorted))
	pathRefs := make([]stringRef, len(sorted))
	lowerRefs := make([]stringRef, len(sorted))

	for i, item := range sorted {
		nameRefs[i] = appendString(item.Name)
		pathRefs[i] = appendString(item.Path)

		lower := item.LowerName
		if lower == "" {
			lower = lowerASCIIString(item.Name)
		}

		lowerRefs[i] = appendString(lower)
	}

	var buf bytes.Buffer
	buf.Grow(int(poolBase) + pool.Len())

	writeHeader(&buf, len(sorted))

	for i, item := range sorted {
		writeRecord(&buf, item, nameRefs[i], pathRefs[i], lowerRefs[i])
	}

	buf.Write(pool.Bytes())

	return w.atomic.WriteWithDefaults(path, bytes.NewReader(buf.Bytes()))
}

func writeHeader(buf *bytes.Buffer, count int) {
	buf.Write(snapshotMagic[:])

	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], uint32(snapshotVersion))
	buf.Write(versionBytes[:])

	var countBytes [8]byte
	binary.LittleEndian.PutUint64(countBytes[:], uint64(count))
	buf.Write(countBytes[:])
}

func writeRecord(buf *bytes.Buffer, item Item, nameRef, pathRef, lowerRef stringRef) {
	var rec [recordStride]byte

	binary.LittleEndian.PutUint64(rec[offSize:], uint64(item.Size))
	binary.LittleEndian.PutUint64(rec[offModTime:], math.Float64bits(toEpochSeconds(item.ModTime)))

	if item.IsDir {
		rec[offFlags] = flagIsDir
	}

	binary.LittleEndian.PutUint32(rec[offNameOffset:], nameRef.offset)
	binary.LittleEndian.PutUint32(rec[offNameLength:], nameRef.length)
	binary.LittleEndian.PutUint32(rec[offPathOffset:], pathRef.offset)
	binary.LittleEndian.PutUint32(rec[offPathLength:], pathRef.length)
	binary.LittleEndian.PutUint32(rec[offLowerNameOffset:], lowerRef.offset)
	binary.LittleEndian.PutUint32(rec[offLowerNameLength:], lowerRef.length)

	buf.Write(rec[:])
}
