package index

import "errors"

var (
	// ErrSnapshotAbsent means the snapshot file does not exist. Callers
	// should enter the rebuild path rather than treat this as fatal.
	ErrSnapshotAbsent = errors.New("index: snapshot absent")

	// ErrSnapshotCorrupt means the snapshot's header failed validation
	// (bad magic, version mismatch, or a record count inconsistent with
	// file size). Callers should treat the snapshot as absent and rebuild.
	ErrSnapshotCorrupt = errors.New("index: snapshot corrupt or incompatible")

	// ErrIndexOutOfRange is returned by Materialize/Compare for an index
	// outside [0, ItemCount()) - typically a stale index vector from a
	// snapshot that has since been swapped out.
	ErrIndexOutOfRange = errors.New("index: out of range")
)
