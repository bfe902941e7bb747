package cleanup_test

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cockpitdev/cockpit/internal/cache"
	"github.com/cockpitdev/cockpit/internal/cleanup"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCleanOutputsRemovesDeclaredOutputs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")
	writeFile(t, root, "dist/b.js")

	eng := &cleanup.Engine{}
	def := workspace.TaskDefinition{
		Outputs: []string{"dist/**"},
		Cleanup: workspace.Cleanup{Kind: workspace.CleanupOutputs},
	}
	res := eng.Clean(":build", def, root, false)

	assert.Equal(t, len(res.Deleted), 2)
	_, err := os.Stat(filepath.Join(root, "dist", "a.js"))
	assert.Assert(t, os.IsNotExist(err), "expected dist/a.js to be removed")
}

func TestCleanNoOpWhenOutputsUnset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	eng := &cleanup.Engine{}
	def := workspace.TaskDefinition{Cleanup: workspace.Cleanup{Kind: workspace.CleanupOutputs}}
	res := eng.Clean(":build", def, root, false)

	if len(res.Deleted) != 0 {
		t.Fatalf("expected no deletions when outputs is unset, got %v", res.Deleted)
	}
	if _, err := os.Stat(filepath.Join(root, "dist", "a.js")); err != nil {
		t.Error("expected dist/a.js to survive")
	}
}

func TestCleanExplicitPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tmp/cache.bin")

	eng := &cleanup.Engine{}
	def := workspace.TaskDefinition{
		Cleanup: workspace.Cleanup{Kind: workspace.CleanupPatterns, Patterns: []string{"tmp/cache.bin"}},
	}
	res := eng.Clean(":build", def, root, false)

	if len(res.Deleted) != 1 {
		t.Fatalf("expected 1 deletion, got %v", res.Deleted)
	}
}

func TestCleanDryRunDoesNotDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	eng := &cleanup.Engine{}
	def := workspace.TaskDefinition{
		Outputs: []string{"dist/**"},
		Cleanup: workspace.Cleanup{Kind: workspace.CleanupOutputs},
	}
	res := eng.Clean(":build", def, root, true)

	if len(res.Deleted) != 1 {
		t.Fatalf("expected dry-run to report 1 match, got %v", res.Deleted)
	}
	if _, err := os.Stat(filepath.Join(root, "dist", "a.js")); err != nil {
		t.Error("dry run must not delete files")
	}
}

func TestCleanInvalidatesCacheOnDeletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	cs, err := cache.New(filepath.Join(root, ".cockpit", ".cache"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.Store(cache.StoreInput{TaskID: ":build", InputHash: "h1", WorkspacePath: root}); err != nil {
		t.Fatal(err)
	}

	eng := &cleanup.Engine{Cache: cs}
	def := workspace.TaskDefinition{
		Outputs: []string{"dist/**"},
		Cleanup: workspace.Cleanup{Kind: workspace.CleanupOutputs},
	}
	eng.Clean(":build", def, root, false)

	has, err := cs.Has(":build", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("expected cache entry to be invalidated after cleanup deleted files")
	}
}
