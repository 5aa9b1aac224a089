package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/errthang/pkg/fs"
)

const testContentHello = "hello, errthang"

func TestAtomicWriteFile_WritesContentDurably(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriteFile_OverwritesExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriteFile_LeavesNoTempFilesBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if got, want := len(entries), 1; got != want {
		t.Fatalf("len(entries)=%d, want %d (entries=%v)", got, want, entries)
	}

	if got, want := entries[0].Name(), "final.txt"; got != want {
		t.Fatalf("entries[0].Name()=%q, want %q", got, want)
	}
}

func TestAtomicWriteFile_RejectsZeroPerm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(path, strings.NewReader(testContentHello), fs.AtomicWriteOptions{})
	if err == nil {
		t.Fatalf("Write: got nil error, want non-nil")
	}
}

func TestAtomicWriteFile_RejectsEmptyPath(t *testing.T) {
	t.Parallel()

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults("", strings.NewReader(testContentHello))
	if err == nil {
		t.Fatalf("WriteWithDefaults: got nil error, want non-nil")
	}
}

func TestAtomicWriteFile_MissingParentIsNotDirSyncError(t *testing.T) {
	t.Parallel()

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults(filepath.Join(t.TempDir(), "missing-parent", "final.txt"), strings.NewReader(testContentHello))
	if err == nil {
		t.Fatalf("WriteWithDefaults: got nil error, want non-nil")
	}

	if errors.Is(err, fs.ErrAtomicWriteDirSync) {
		t.Fatalf("unexpected ErrAtomicWriteDirSync for a missing parent directory: %v", err)
	}
}
