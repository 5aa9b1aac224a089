package index

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// Record layout (stride recordStride, 8-byte aligned). Offsets below are
// relative to the start of a single record. String-pool offsets stored in a
// record are absolute offsets into the whole snapshot buffer.
const (
	recordStride = 48
	headerSize   = 16

	offSize            = 0
	offModTime         = 8
	offFlags           = 16
	offNameOffset      = 20
	offNameLength      = 24
	offPathOffset      = 28
	offPathLength      = 32
	offLowerNameOffset = 36
	offLowerNameLength = 40

	flagIsDir = 1 << 0
)

func recordOffset(recordBase, stride, idx int) int {
	return recordBase + idx*stride
}

func readU32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func readI64(buf []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[off : off+8]))
}

func readF64(buf []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
}

// fieldString returns the byte slice a (offset, length) record field
// addresses within the whole snapshot buffer.
func fieldString(buf []byte, recOff, offsetField, lengthField int) []byte {
	off := readU32(buf, recOff+offsetField)
	length := readU32(buf, recOff+lengthField)

	return buf[off : off+length]
}

// Scan holds no state: it operates directly on a packed record buffer.
//
// Scan searches records [start, end) for a name whose precomputed
// lowercased form contains every token as a substring (token-AND, the same
// matching rule the delta overlay applies). Tokens must already be
// lowercased by the caller. Zero tokens matches every record. Returns
// matching indices in ascending order; allocates only the output slice.
func Scan(buf []byte, recordBase, stride, start, end int, tokens [][]byte) []int32 {
	out := make([]int32, 0, end-start)

	for i := start; i < end; i++ {
		recOff := recordOffset(recordBase, stride, i)
		lowerName := fieldString(buf, recOff, offLowerNameOffset, offLowerNameLength)

		if matchesAllTokensBytes(lowerName, tokens) {
			out = append(out, int32(i))
		}
	}

	return out
}

func matchesAllTokensBytes(lowerName []byte, tokens [][]byte) bool {
	for _, tok := range tokens {
		if !bytes.Contains(lowerName, tok) {
			return false
		}
	}

	return true
}

// LookupPath linearly scans [0, count) for the record whose path matches
// target exactly. Returns -1 if absent.
func LookupPath(buf []byte, recordBase, stride, count int, target []byte) int {
	for i := 0; i < count; i++ {
		recOff := recordOffset(recordBase, stride, i)
		path := fieldString(buf, recOff, offPathOffset, offPathLength)

		if len(path) == len(target) && bytes.Equal(path, target) {
			return i
		}
	}

	return -1
}

// compareRecordField compares the given key's field between two records.
// name/path compare byte-lexicographically with length as a tiebreaker
// (which is exactly what bytes.Compare already does); size compares as
// signed 64-bit integers; date compares as 64-bit floats.
func compareRecordField(buf []byte, recOffA, recOffB int, key SortKey) CompareResult {
	switch key {
	case SortByName:
		return fromSignedInt(bytes.Compare(
			fieldString(buf, recOffA, offNameOffset, offNameLength),
			fieldString(buf, recOffB, offNameOffset, offNameLength),
		))
	case SortByPath:
		return fromSignedInt(bytes.Compare(
			fieldString(buf, recOffA, offPathOffset, offPathLength),
			fieldString(buf, recOffB, offPathOffset, offPathLength),
		))
	case SortBySize:
		a, b := readI64(buf, recOffA+offSize), readI64(buf, recOffB+offSize)

		return compareInt64(a, b)
	case SortByDate:
		a, b := readF64(buf, recOffA+offModTime), readF64(buf, recOffB+offModTime)

		return compareFloat64(a, b)
	default:
		return Equal
	}
}

func compareInt64(a, b int64) CompareResult {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func compareFloat64(a, b float64) CompareResult {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// SortIndices sorts indices in place by the named key over the record
// buffer. Total order; stability is not guaranteed (matching the snapshot's
// own no-stability-required contract - add SortByPath as a secondary pass
// if a deterministic tiebreak across rebuilds is required).
func SortIndices(indices []int32, buf []byte, recordBase, stride int, key SortKey, ascending bool) {
	sort.Slice(indices, func(i, j int) bool {
		c := compareRecordField(
			buf,
			recordOffset(recordBase, stride, int(indices[i])),
			recordOffset(recordBase, stride, int(indices[j])),
			key,
		)

		if ascending {
			return c == Less
		}

		return c == Greater
	})
}

// CompareItems compares two heap Items by key, using the same semantics as
// compareRecordField so overlay-only sorting agrees bit-for-bit with
// snapshot sorting.
func CompareItems(a, b Item, key SortKey) CompareResult {
	switch key {
	case SortByName:
		return fromSignedInt(bytes.Compare([]byte(a.Name), []byte(b.Name)))
	case SortByPath:
		return fromSignedInt(bytes.Compare([]byte(a.Path), []byte(b.Path)))
	case SortBySize:
		return compareInt64(a.Size, b.Size)
	case SortByDate:
		return compareFloat64(toEpochSeconds(a.ModTime), toEpochSeconds(b.ModTime))
	default:
		return Equal
	}
}

// LessItems reports whether a sorts before b under key/ascending, built on
// top of [CompareItems].
func LessItems(a, b Item, key SortKey, ascending bool) bool {
	c := CompareItems(a, b, key)
	if ascending {
		return c == Less
	}

	return c == Greater
}
