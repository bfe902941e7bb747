// Package hashing computes the deterministic input fingerprint described in
// spec §4.4: a SHA-256 digest over the task's command, (conditionally)
// extra arguments and environment, and the metadata of its declared input
// files, truncated to its first 16 hex characters.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/cockpitdev/cockpit/internal/workspace"
)

// excludedDirs are always excluded from input-file expansion, even when a
// user explicitly globs over them, to avoid self-invalidation loops (a
// task's own cache or build output would otherwise change its own hash).
var excludedDirs = []string{"node_modules", ".git", "dist", ".cache"}

// Fingerprint computes the hex-encoded, 16-character input hash for a task.
//
// extraArgs is only folded into the digest when isMainTask is true (spec:
// "pass extraArgs only when this task is in the mainTaskIds set").
func Fingerprint(def workspace.TaskDefinition, workspacePath string, extraArgs []string, isMainTask bool) (string, error) {
	h := sha256.New()

	fmt.Fprintf(h, "command:%s\n", canonicalCommand(def.Command))

	if isMainTask && len(extraArgs) > 0 {
		fmt.Fprintf(h, "args:%s\n", canonicalStrings(extraArgs))
	}

	if len(def.Env) > 0 {
		fmt.Fprintf(h, "env:%s\n", canonicalEnv(def.Env))
	}

	files, err := expandInputFiles(def, workspacePath)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		fmt.Fprintf(h, "file:%s:%s:%d\n", f.RelPath, f.ModTime, f.Size)
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16], nil
}

func canonicalCommand(c workspace.Command) string {
	switch c.Kind {
	case workspace.CommandShell:
		return "shell:" + c.Shell
	case workspace.CommandShellList:
		return "shell-list:" + canonicalStrings(c.ShellList)
	case workspace.CommandExplicit:
		return fmt.Sprintf("explicit:%s:%s:%s:%v", c.Program, canonicalStrings(c.Args), c.Cwd, c.UseShell)
	default:
		return "unknown"
	}
}

func canonicalStrings(ss []string) string {
	// Order is semantically meaningful for commands/args; do not sort.
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += "\x1f"
		}
		out += s
	}
	return out
}

func canonicalEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + env[k] + "\x1f"
	}
	return out
}

// FileMeta is the metadata fed into the hash for a single input file.
type FileMeta struct {
	RelPath string
	ModTime string
	Size    int64
}

func expandInputFiles(def workspace.TaskDefinition, workspacePath string) ([]FileMeta, error) {
	patterns := def.Inputs
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	return ExpandGlobs(workspacePath, patterns, excludedDirs)
}

// ExpandGlobs resolves the given glob patterns under root, excluding any
// path with a path component that matches one of excludeDirs, and returns
// file metadata sorted by relative path for deterministic hashing.
func ExpandGlobs(root string, patterns []string, excludeDirs []string) ([]FileMeta, error) {
	fsys := afero.NewIOFS(afero.NewBasePathFs(afero.NewOsFs(), root))

	seen := map[string]bool{}
	var matches []string
	for _, pattern := range patterns {
		found, err := doublestar.Glob(fsys, filepath.ToSlash(pattern))
		if err != nil {
			continue
		}
		for _, m := range found {
			if seen[m] {
				continue
			}
			if isExcluded(m, excludeDirs) {
				continue
			}
			seen[m] = true
			matches = append(matches, m)
		}
	}
	sort.Strings(matches)

	metas := make([]FileMeta, 0, len(matches))
	for _, rel := range matches {
		info, err := afero.NewOsFs().Stat(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		metas = append(metas, FileMeta{
			RelPath: rel,
			ModTime: info.ModTime().UTC().Format("2006-01-02T15:04:05.000000000Z"),
			Size:    info.Size(),
		})
	}
	return metas, nil
}

func isExcluded(relPath string, excludeDirs []string) bool {
	clean := filepath.ToSlash(relPath)
	for _, seg := range strings.Split(clean, "/") {
		for _, excl := range excludeDirs {
			if seg == excl {
				return true
			}
		}
	}
	return false
}
