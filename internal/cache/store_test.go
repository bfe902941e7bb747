package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockpitdev/cockpit/internal/cache"
)

func newStore(t *testing.T) (*cache.Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".cache")
	s, err := cache.New(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s, root
}

// Testable property 5: storing and restoring a cache entry round-trips the
// exact set of files written.
func TestStoreRestoreSymmetry(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := os.MkdirAll(filepath.Join(ws, "dist"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "dist", "out.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := s.Store(cache.StoreInput{
		TaskID:        "web:build",
		InputHash:     "abc123",
		Outputs:       []string{"dist/**"},
		WorkspacePath: ws,
	})
	if err != nil {
		t.Fatal(err)
	}

	has, err := s.Has("web:build", "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("expected entry to exist after Store")
	}

	// Simulate a clean workspace (e.g. after `rm -rf dist`).
	if err := os.RemoveAll(filepath.Join(ws, "dist")); err != nil {
		t.Fatal(err)
	}

	onDisk, err := s.HasOutputsOnDisk("web:build", "abc123", ws)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk {
		t.Fatal("expected outputs to be reported missing after deletion")
	}

	restored, err := s.RestoreOutputs("web:build", "abc123", ws)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 1 {
		t.Fatalf("expected 1 file restored, got %d", restored)
	}

	data, err := os.ReadFile(filepath.Join(ws, "dist", "out.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "console.log(1)" {
		t.Fatalf("restored content mismatch: %q", data)
	}
}

// Testable property 6: replayed console output matches exactly what was
// stored, in the same order.
func TestOutputChunkReplayFidelity(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	chunks := []cache.OutputChunk{
		{Stream: cache.Stdout, Data: "compiling\n"},
		{Stream: cache.Stderr, Data: "warning: unused variable\n"},
		{Stream: cache.Stdout, Data: "done\n"},
	}

	err := s.Store(cache.StoreInput{
		TaskID:        "core:build",
		InputHash:     "def456",
		WorkspacePath: ws,
		OutputChunks:  chunks,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOutputChunks("core:build", "def456")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(got))
	}
	for i, c := range chunks {
		if got[i] != c {
			t.Errorf("chunk %d mismatch: got %+v, want %+v", i, got[i], c)
		}
	}
}

// E3: a repeated run with an unchanged input hash is a cache hit.
func TestLookupIsActiveAfterStore(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}

	res, err := s.Lookup("utils:build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || !res.IsActive {
		t.Fatalf("expected found+active entry, got %+v", res)
	}
}

// E4: storing a new hash for the same task supersedes the old one as the
// active hash, while the old entry remains independently invalidatable.
func TestStoreSupersedesActiveHash(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h2", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}

	res1, err := s.Lookup("utils:build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if !res1.Found || res1.IsActive {
		t.Fatalf("expected h1 to still exist but not be active, got %+v", res1)
	}

	res2, err := s.Lookup("utils:build", "h2")
	if err != nil {
		t.Fatal(err)
	}
	if !res2.Found || !res2.IsActive {
		t.Fatalf("expected h2 to be found and active, got %+v", res2)
	}
}

// E5: invalidating a task's cache removes both its registry entries and its
// manifest pointer, forcing a re-run.
func TestInvalidateClearsTask(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}
	if err := s.Invalidate("utils:build", ""); err != nil {
		t.Fatal(err)
	}

	has, err := s.Has("utils:build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("expected entry to be gone after invalidating the whole task")
	}
}

func TestStatsAndListEntries(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(cache.StoreInput{TaskID: "core:build", InputHash: "h2", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.StatsOf()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Tasks != 2 || stats.TotalEntries != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	entries, err := s.ListEntries("utils:build")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].InputHash != "h1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	s, root := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "utils:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(root, "results")); !os.IsNotExist(err) {
		t.Fatal("expected results directory to be removed")
	}
	has, err := s.Has("utils:build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("expected no entries after Clear")
	}
}

// Safe directory names: colon-bearing task ids must not create nested
// directories.
func TestSafeTaskDirHandlesColon(t *testing.T) {
	s, _ := newStore(t)
	ws := t.TempDir()

	if err := s.Store(cache.StoreInput{TaskID: "apps/web:build", InputHash: "h1", WorkspacePath: ws}); err != nil {
		t.Fatal(err)
	}
	has, err := s.Has("apps/web:build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("expected lookup to succeed for a task id containing a colon")
	}
}
