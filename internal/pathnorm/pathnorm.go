// Package pathnorm provides the single path-canonicalization function
// shared by internal/crawler and internal/watcher, so a path they produce
// as a map/primary key means the same thing in both. internal/catalog does
// not call it: it stores each path exactly as the caller passes it.
package pathnorm

import "path/filepath"

// Canonicalize cleans path and resolves symlinks so the same file always
// canonicalizes to the same string, regardless of which symlinked route it
// was reached through. If symlink resolution fails (for example, the path
// was removed between the caller's stat and this call), the cleaned but
// unresolved path is returned instead of an error - the caller's next
// filesystem event for this path will settle it, and the primary key
// contract just needs a single consistent function, not a perfect one.
func Canonicalize(path string) string {
	cleaned := filepath.Clean(path)

	resolved, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned
	}

	return resolved
}
