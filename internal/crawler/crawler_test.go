package crawler_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/calvinalkan/errthang/internal/crawler"
	"github.com/calvinalkan/errthang/pkg/index"
)

type fakeCatalog struct {
	mu              sync.Mutex
	inserted        []index.Item
	deletedPrefixes []string
	bulkErr         error
}

func (f *fakeCatalog) BulkInsert(_ context.Context, items []index.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bulkErr != nil {
		return f.bulkErr
	}

	f.inserted = append(f.inserted, items...)

	return nil
}

func (f *fakeCatalog) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedPrefixes = append(f.deletedPrefixes, prefix)

	return nil
}

func (f *fakeCatalog) items() []index.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]index.Item(nil), f.inserted...)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, rel)

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
}

func TestCrawl_IndexesAllFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "a",
		"sub/b.txt":    "bb",
		"sub/c.txt":    "ccc",
		".hidden/x.txt": "skip me",
		".dotfile":     "skip me too",
	})

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	total, err := c.Crawl(t.Context(), root, nil, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	names := map[string]bool{}
	for _, item := range cat.items() {
		names[item.Name] = true
	}

	for _, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if !names[want] {
			t.Fatalf("missing %s in indexed items: %v", want, names)
		}
	}

	if names[".dotfile"] || names["x.txt"] {
		t.Fatalf("hidden entries should have been skipped: %v", names)
	}
}

func TestCrawl_SkipsExcludedPrefix(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep/a.txt":   "a",
		"skip/b.txt":   "b",
	})

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	exclude := []string{filepath.Join(root, "skip")}

	_, err := c.Crawl(t.Context(), root, exclude, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	for _, item := range cat.items() {
		if item.Name == "b.txt" {
			t.Fatal("excluded prefix was not skipped")
		}
	}
}

func TestCrawl_SkipsEntriesNewerThanCrawlStart(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"old.txt": "old"})

	future := time.Now().Add(1 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "old.txt"), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	writeTree(t, root, map[string]string{"current.txt": "current"})

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	_, err := c.Crawl(t.Context(), root, nil, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	names := map[string]bool{}
	for _, item := range cat.items() {
		names[item.Name] = true
	}

	if names["old.txt"] {
		t.Fatal("entry modified after crawl start should have been skipped")
	}

	if !names["current.txt"] {
		t.Fatal("entry modified before crawl start should have been indexed")
	}
}

func TestCrawl_StopsWhenGenerationStale(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	files := make(map[string]string, 2500)
	for i := 0; i < 2500; i++ {
		files[filepath.Join("d", strconv.Itoa(i)+".txt")] = "x"
	}

	writeTree(t, root, files)

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	checks := 0

	stillCurrent := func() bool {
		checks++

		return checks < 2
	}

	_, err := c.Crawl(t.Context(), root, nil, stillCurrent)
	if err == nil {
		t.Fatal("expected ErrCancelled")
	}
}

func TestCrawl_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	files := make(map[string]string, 2500)
	for i := 0; i < 2500; i++ {
		files[filepath.Join("d", strconv.Itoa(i)+".txt")] = "x"
	}

	writeTree(t, root, files)

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Crawl(ctx, root, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestClear_DelegatesToDeletePrefix(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	c := crawler.New(cat, nil)

	if err := c.Clear(t.Context(), "/some/root"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cat.mu.Lock()
	defer cat.mu.Unlock()

	if len(cat.deletedPrefixes) != 1 || cat.deletedPrefixes[0] != "/some/root" {
		t.Fatalf("deletedPrefixes = %v, want [/some/root]", cat.deletedPrefixes)
	}
}
