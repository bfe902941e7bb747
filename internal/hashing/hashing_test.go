package hashing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockpitdev/cockpit/internal/hashing"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func shellDef(inputs ...string) workspace.TaskDefinition {
	return workspace.TaskDefinition{
		Command: workspace.Command{Kind: workspace.CommandShell, Shell: "echo hi"},
		Inputs:  inputs,
	}
}

// Testable property 4: cache determinism.
func TestFingerprintDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "hello")

	def := shellDef("src/**")
	h1, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("fingerprint not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("expected 16 hex chars, got %d (%q)", len(h1), h1)
	}
}

func TestFingerprintChangesWithContentMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "hello")
	def := shellDef("src/**")

	h1, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "src/b.txt", "world")
	h2, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected fingerprint to change after adding a new input file")
	}
}

func TestFingerprintExtraArgsOnlyForMainTask(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "hello")
	def := shellDef("src/**")

	withoutArgs, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	withArgsNotMain, err := hashing.Fingerprint(def, root, []string{"--flag"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if withoutArgs != withArgsNotMain {
		t.Error("extraArgs should be ignored when isMainTask is false")
	}

	withArgsMain, err := hashing.Fingerprint(def, root, []string{"--flag"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if withArgsMain == withoutArgs {
		t.Error("extraArgs should affect the hash when isMainTask is true")
	}
}

func TestFingerprintExcludesNodeModulesAndDist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "hello")
	def := shellDef() // defaults to **/*

	h1, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, root, "dist/out.js", "console.log(1)")
	h2, err := hashing.Fingerprint(def, root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("node_modules/dist contents must not affect the input hash even under the default **/* glob")
	}
}
