// Package cleanup implements the cleanup engine described in spec §4.9:
// expand a task's declared cleanup globs, remove the resolved paths, and
// invalidate its cache entry when anything was deleted.
package cleanup

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/cockpitdev/cockpit/internal/cache"
	"github.com/cockpitdev/cockpit/internal/hashing"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

// excludedDirs mirrors the glob-expansion contract in spec §9: always
// exclude node_modules and .git.
var excludedDirs = []string{"node_modules", ".git"}

// Result is the outcome of cleaning up one task.
type Result struct {
	Deleted []string
	Errors  *multierror.Error
}

// Engine removes a task's declared cleanup paths and invalidates its cache
// entry afterward.
type Engine struct {
	Cache *cache.Store
}

// Clean resolves def.Cleanup against workspacePath and deletes every
// matched path. On a non-dry-run with at least one deletion, it invalidates
// the task's whole cache entry (all hashes).
func (e *Engine) Clean(taskID string, def workspace.TaskDefinition, workspacePath string, dryRun bool) Result {
	patterns := e.resolvePatterns(def)
	if len(patterns) == 0 {
		return Result{}
	}

	paths := e.expand(workspacePath, patterns)
	if dryRun {
		return Result{Deleted: paths}
	}

	var result Result
	for _, p := range paths {
		full := filepath.Join(workspacePath, p)
		info, err := os.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = multierror.Append(result.Errors, err)
			continue
		}
		if info.IsDir() {
			err = os.RemoveAll(full)
		} else {
			err = os.Remove(full)
		}
		if err != nil {
			result.Errors = multierror.Append(result.Errors, err)
			continue
		}
		result.Deleted = append(result.Deleted, p)
	}

	if len(result.Deleted) > 0 && e.Cache != nil {
		if err := e.Cache.Invalidate(taskID, ""); err != nil {
			result.Errors = multierror.Append(result.Errors, err)
		}
	}

	return result
}

func (e *Engine) resolvePatterns(def workspace.TaskDefinition) []string {
	switch def.Cleanup.Kind {
	case workspace.CleanupOutputs:
		return def.Outputs
	case workspace.CleanupPatterns:
		return def.Cleanup.Patterns
	default:
		return nil
	}
}

// expand resolves each pattern independently to a deduplicated list of
// workspace-relative paths: first by glob, falling back to a direct path
// check when that pattern matched nothing (spec §4.9).
func (e *Engine) expand(workspacePath string, patterns []string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(rel string) {
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}

	for _, pattern := range patterns {
		matches, err := hashing.ExpandGlobs(workspacePath, []string{pattern}, excludedDirs)
		if err == nil && len(matches) > 0 {
			for _, m := range matches {
				add(m.RelPath)
			}
			continue
		}

		full := filepath.Join(workspacePath, pattern)
		if _, err := os.Lstat(full); err == nil {
			add(pattern)
		}
	}

	return out
}
