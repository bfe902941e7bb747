// Package cache implements the content-addressed cache described in spec
// §4.5: a per-task registry of hash -> entry, a manifest of the hash
// currently materialized in the workspace, and file/stream replay.
//
// The on-disk layout is deliberately file-mirroring rather than archive
// based (no tar/zstd packaging, unlike the teacher's cacheitem format) —
// spec §4.5/§1 chose metadata-based fingerprints and plain file copies over
// content-addressed archives.
package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nightlyone/lockfile"

	"github.com/cockpitdev/cockpit/internal/hashing"
)

// excludedDirs mirrors the glob-expansion contract from spec §9: always
// exclude node_modules and .git when expanding output globs.
var excludedDirs = []string{"node_modules", ".git"}

// Store is the on-disk, per-process cache described in spec §4.5, rooted at
// <root>/.cockpit/.cache.
type Store struct {
	root   string
	logger hclog.Logger

	manifestMu sync.Mutex
}

// New opens (creating if necessary) a cache store rooted at root.
func New(root string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(filepath.Join(root, "results"), 0o775); err != nil {
		return nil, err
	}
	return &Store{root: root, logger: logger.Named("cache")}, nil
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.root, "manifest.json")
}

func safeTaskDir(taskID string) string {
	s := strings.ReplaceAll(taskID, ":", "__")
	return strings.ReplaceAll(s, "/", "_")
}

func (s *Store) taskDir(taskID string) string {
	return filepath.Join(s.root, "results", safeTaskDir(taskID))
}

func (s *Store) registryPath(taskID string) string {
	return filepath.Join(s.taskDir(taskID), "registry.json")
}

func (s *Store) hashDir(taskID, inputHash string) string {
	return filepath.Join(s.taskDir(taskID), inputHash)
}

// withManifestLock serializes manifest read-modify-write across processes
// using an advisory file lock, addressing the §9 open question about
// cross-process manifest safety. Within this process, concurrent callers
// (tasks of the same level) are serialized by manifestMu, since the lock
// file does not exclude goroutines of its own process.
func (s *Store) withManifestLock(fn func(Manifest) (Manifest, error)) error {
	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()

	lockPath := s.manifestPath() + ".lock"
	lf, lockErr := lockfile.New(lockPath)
	if lockErr == nil {
		// Best effort: if another process holds the lock, retry briefly
		// rather than blocking the run indefinitely.
		for i := 0; i < 20; i++ {
			if err := lf.TryLock(); err == nil {
				defer func() { _ = lf.Unlock() }()
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	m, err := loadManifest(s.manifestPath())
	if err != nil {
		return err
	}
	updated, err := fn(m)
	if err != nil {
		return err
	}
	return saveManifest(s.manifestPath(), updated)
}

// LookupResult is returned by Lookup.
type LookupResult struct {
	Found    bool
	Entry    RegistryEntry
	IsActive bool
}

// Lookup loads the task's registry and the manifest's active hash,
// reporting whether inputHash has a registry entry and whether it is the
// currently active one.
func (s *Store) Lookup(taskID, inputHash string) (LookupResult, error) {
	reg, err := loadRegistry(s.registryPath(taskID))
	if err != nil {
		return LookupResult{}, err
	}
	entry, ok := reg.Entries[inputHash]
	if !ok {
		return LookupResult{Found: false}, nil
	}
	manifest, err := loadManifest(s.manifestPath())
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{Found: true, Entry: entry, IsActive: manifest[taskID] == inputHash}, nil
}

// Has is a convenience wrapper over Lookup.
func (s *Store) Has(taskID, inputHash string) (bool, error) {
	res, err := s.Lookup(taskID, inputHash)
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

// HasOutputsOnDisk verifies that every cached file for (taskID, inputHash)
// still exists at its expected location under workspacePath. An entry with
// zero cached files is vacuously true.
func (s *Store) HasOutputsOnDisk(taskID, inputHash, workspacePath string) (bool, error) {
	res, err := s.Lookup(taskID, inputHash)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, nil
	}
	if len(res.Entry.CachedFiles) == 0 {
		return true, nil
	}
	for _, f := range res.Entry.CachedFiles {
		if _, err := os.Stat(filepath.Join(workspacePath, f.RelativePath)); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// RestoreOutputs copies cached files back into the workspace, returning the
// number restored, or -1 if the entry has no cached files or its outputs
// directory is missing.
func (s *Store) RestoreOutputs(taskID, inputHash, workspacePath string) (int, error) {
	res, err := s.Lookup(taskID, inputHash)
	if err != nil {
		return -1, err
	}
	if !res.Found || len(res.Entry.CachedFiles) == 0 {
		return -1, nil
	}
	outputsDir := filepath.Join(s.hashDir(taskID, inputHash), "outputs")
	if _, err := os.Stat(outputsDir); err != nil {
		return -1, nil
	}

	restored := 0
	for _, f := range res.Entry.CachedFiles {
		src := filepath.Join(outputsDir, f.RelativePath)
		dst := filepath.Join(workspacePath, f.RelativePath)
		if err := copyFile(src, dst); err != nil {
			s.logger.Warn("failed to restore cached file", "task", taskID, "file", f.RelativePath, "error", err)
			continue
		}
		restored++
	}

	if restored > 0 {
		if err := s.setActiveHash(taskID, inputHash); err != nil {
			return restored, err
		}
	}
	return restored, nil
}

// StoreInput bundles the arguments to Store.
type StoreInput struct {
	TaskID        string
	InputHash     string
	Outputs       []string
	WorkspacePath string
	OutputChunks  []OutputChunk
}

// Store atomically replaces any existing entry for (taskID, inputHash):
// expands output globs against the workspace, copies matched files into the
// hash directory, writes output.json, upserts the registry, and sets the
// manifest's active hash.
func (s *Store) Store(in StoreInput) error {
	if err := os.MkdirAll(s.taskDir(in.TaskID), 0o775); err != nil {
		return err
	}

	hashDir := s.hashDir(in.TaskID, in.InputHash)
	// Atomic replace: build into a temp dir, then rename over the old one.
	tmpDir := hashDir + ".tmp"
	_ = os.RemoveAll(tmpDir)
	if err := os.MkdirAll(filepath.Join(tmpDir, "outputs"), 0o775); err != nil {
		return err
	}

	var cachedFiles []CachedFile
	if len(in.Outputs) > 0 {
		files, err := hashing.ExpandGlobs(in.WorkspacePath, in.Outputs, excludedDirs)
		if err != nil {
			return err
		}
		s.warnOnOverlap(in.TaskID, files)
		for _, f := range files {
			src := filepath.Join(in.WorkspacePath, f.RelPath)
			dst := filepath.Join(tmpDir, "outputs", f.RelPath)
			if err := copyFile(src, dst); err != nil {
				s.logger.Warn("failed to cache output file", "task", in.TaskID, "file", f.RelPath, "error", err)
				continue
			}
			cachedFiles = append(cachedFiles, CachedFile{RelativePath: f.RelPath, Size: f.Size})
		}
	}

	chunksData, err := json.Marshal(in.OutputChunks)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "output.json"), chunksData, 0o644); err != nil {
		return err
	}

	_ = os.RemoveAll(hashDir)
	if err := os.Rename(tmpDir, hashDir); err != nil {
		return err
	}

	reg, err := loadRegistry(s.registryPath(in.TaskID))
	if err != nil {
		return err
	}
	reg.Entries[in.InputHash] = RegistryEntry{
		InputHash:   in.InputHash,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Outputs:     in.Outputs,
		CachedFiles: cachedFiles,
	}
	if err := saveRegistry(s.registryPath(in.TaskID), reg); err != nil {
		return err
	}

	return s.setActiveHash(in.TaskID, in.InputHash)
}

// warnOnOverlap logs (but does not block on) output paths that another
// task's active cache entry also claims — the §9 open question notes this
// is "not prevented", only surfaced.
func (s *Store) warnOnOverlap(taskID string, files []hashing.FileMeta) {
	manifest, err := loadManifest(s.manifestPath())
	if err != nil || len(manifest) == 0 {
		return
	}
	claimed := map[string]string{}
	for otherID, hash := range manifest {
		if otherID == taskID {
			continue
		}
		entry, ok := func() (RegistryEntry, bool) {
			reg, err := loadRegistry(s.registryPath(otherID))
			if err != nil {
				return RegistryEntry{}, false
			}
			e, ok := reg.Entries[hash]
			return e, ok
		}()
		if !ok {
			continue
		}
		for _, f := range entry.CachedFiles {
			claimed[f.RelativePath] = otherID
		}
	}
	for _, f := range files {
		if owner, ok := claimed[f.RelPath]; ok {
			s.logger.Warn("output path already claimed by another task's cache entry", "task", taskID, "path", f.RelPath, "owner", owner)
		}
	}
}

func (s *Store) setActiveHash(taskID, inputHash string) error {
	return s.withManifestLock(func(m Manifest) (Manifest, error) {
		m[taskID] = inputHash
		return m, nil
	})
}

// Invalidate removes a specific hash's subtree and registry entry (clearing
// the manifest entry only if it pointed at this hash), or the whole task
// directory and manifest entry if inputHash is empty.
func (s *Store) Invalidate(taskID string, inputHash string) error {
	if inputHash == "" {
		if err := os.RemoveAll(s.taskDir(taskID)); err != nil {
			return err
		}
		return s.withManifestLock(func(m Manifest) (Manifest, error) {
			delete(m, taskID)
			return m, nil
		})
	}

	if err := os.RemoveAll(s.hashDir(taskID, inputHash)); err != nil {
		return err
	}
	reg, err := loadRegistry(s.registryPath(taskID))
	if err != nil {
		return err
	}
	delete(reg.Entries, inputHash)
	if err := saveRegistry(s.registryPath(taskID), reg); err != nil {
		return err
	}
	return s.withManifestLock(func(m Manifest) (Manifest, error) {
		if m[taskID] == inputHash {
			delete(m, taskID)
		}
		return m, nil
	})
}

// GetOutputChunks returns the captured console output for replay, or nil if
// no entry exists.
func (s *Store) GetOutputChunks(taskID, inputHash string) ([]OutputChunk, error) {
	data, err := os.ReadFile(filepath.Join(s.hashDir(taskID, inputHash), "output.json"))
	if err != nil {
		return nil, nil
	}
	var chunks []OutputChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, nil
	}
	return chunks, nil
}

// Stats summarizes the whole store.
type Stats struct {
	Tasks        int
	TotalEntries int
}

// StatsOf walks every task directory and tallies registry entries.
func (s *Store) StatsOf() (Stats, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "results"))
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{}, nil
		}
		return Stats{}, err
	}
	stats := Stats{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		stats.Tasks++
		reg, err := loadRegistry(filepath.Join(s.root, "results", e.Name(), "registry.json"))
		if err != nil {
			continue
		}
		stats.TotalEntries += len(reg.Entries)
	}
	return stats, nil
}

// ListEntries returns every registry entry for a task id.
func (s *Store) ListEntries(taskID string) ([]RegistryEntry, error) {
	reg, err := loadRegistry(s.registryPath(taskID))
	if err != nil {
		return nil, err
	}
	out := make([]RegistryEntry, 0, len(reg.Entries))
	for _, e := range reg.Entries {
		out = append(out, e)
	}
	return out, nil
}

// Clear removes the entire cache store.
func (s *Store) Clear() error {
	if err := os.RemoveAll(filepath.Join(s.root, "results")); err != nil {
		return err
	}
	return os.RemoveAll(s.manifestPath())
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o775); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
