package engine

import "errors"

// ErrClosed is returned by any operation called after Close.
var ErrClosed = errors.New("engine: closed")

// ErrCancelled is returned (via errors.Is) when an in-flight crawl or
// rebuild is superseded by a newer generation before it commits.
var ErrCancelled = errors.New("engine: cancelled")

// ErrWriteFailed wraps an IndexWriter I/O error encountered during a
// rebuild. The previous snapshot, if any, remains in place and queries
// continue to be served from it. A debounced rebuild that fails this way
// schedules another one after the next debounce interval.
var ErrWriteFailed = errors.New("engine: snapshot write failed")

// ErrCatalogError wraps an error returned by the Catalog collaborator. The
// core never retries catalog errors itself; they abort the current
// rebuild/crawl and are surfaced to the caller.
var ErrCatalogError = errors.New("engine: catalog error")

var (
	errMaterializeNoSnapshot = errors.New("engine: materialize: no snapshot loaded")
	errMaterializeOutOfRange = errors.New("engine: materialize: overlay index out of range")
)
