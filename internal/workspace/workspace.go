// Package workspace defines the shape of the workspace/task model the core
// consumes. The loader that produces a Catalog (a config file reader, a TS
// evaluator, whatever) is an external collaborator; this package only fixes
// the interface.
package workspace

import "time"

// Platform restricts a task to running only on a given OS family.
type Platform string

const (
	PlatformAll     Platform = "all"
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "win32"
)

// CommandKind discriminates the three forms a TaskDefinition.Command can take.
// The zero value names none of them.
type CommandKind int

const (
	// CommandShell is a single shell string.
	CommandShell CommandKind = iota + 1
	// CommandShellList is an ordered list of shell strings, joined by
	// logical AND.
	CommandShellList
	// CommandExplicit is an explicit {program, args, cwd?, shell?} record.
	CommandExplicit
)

// Command is the tagged union backing TaskDefinition.Command.
type Command struct {
	Kind CommandKind

	// Shell is set when Kind == CommandShell.
	Shell string

	// ShellList is set when Kind == CommandShellList.
	ShellList []string

	// Program/Args/Cwd/UseShell are set when Kind == CommandExplicit.
	Program  string
	Args     []string
	Cwd      string
	UseShell bool
}

// CleanupKind discriminates TaskDefinition.Cleanup.
type CleanupKind int

const (
	// CleanupNone means no cleanup value was set.
	CleanupNone CleanupKind = iota
	// CleanupOutputs reuses TaskDefinition.Outputs as the cleanup patterns.
	CleanupOutputs
	// CleanupPatterns carries an explicit glob pattern list.
	CleanupPatterns
)

// Cleanup is the tagged union backing TaskDefinition.Cleanup.
type Cleanup struct {
	Kind     CleanupKind
	Patterns []string
}

// TaskDefinition is produced by the config adapter and consumed by the core.
type TaskDefinition struct {
	Command     Command
	Description string
	Env         map[string]string
	Inputs      []string
	Outputs     []string
	Cleanup     Cleanup
	// Cache defaults to true when nil.
	Cache *bool
	Cwd   string
	// AllowFailure, when true, downgrades a non-zero exit to success.
	AllowFailure bool
	// TimeoutMS is a positive duration in milliseconds; zero means the
	// scheduler default (300000ms) applies.
	TimeoutMS int
	Platform  Platform
	DependsOn []Ref
	// Persistent marks a long-running task (e.g. a dev server). Persistent
	// tasks are validated against the run's concurrency budget so that a
	// persistent dependency does not hold the only slot its dependents need.
	Persistent bool
}

// Ref mirrors taskid.Ref at the workspace-model boundary so this package has
// no dependency on internal/taskid (keeps the adapter seam self-contained).
type Ref struct {
	Task     string
	Optional bool
}

// CacheEnabled reports whether this task opts into caching (default true).
func (d TaskDefinition) CacheEnabled() bool {
	return d.Cache == nil || *d.Cache
}

// TimeoutOrDefault returns the task's timeout, or the scheduler default.
func (d TaskDefinition) TimeoutOrDefault() time.Duration {
	if d.TimeoutMS > 0 {
		return time.Duration(d.TimeoutMS) * time.Millisecond
	}
	return 300 * time.Second
}

// AppliesToPlatform reports whether this task should run on goos
// ("linux", "darwin", "windows" -> mapped to "win32").
func (d TaskDefinition) AppliesToPlatform(goos string) bool {
	if d.Platform == "" || d.Platform == PlatformAll {
		return true
	}
	target := goos
	if goos == "windows" {
		target = string(PlatformWindows)
	}
	return string(d.Platform) == target
}

// TaskConfig is the per-workspace table of task definitions plus any
// workspace-level environment overlay.
type TaskConfig struct {
	Tasks map[string]TaskDefinition
	Env   map[string]string
}

// Info describes a single workspace (the root workspace, id "", is not
// present in the Workspaces map).
type Info struct {
	ID        string
	Name      string
	AbsPath   string
	RelPath   string
	Tags      []string
	DependsOn []string
}

// Catalog is the full workspace model handed to the core by the config
// adapter: roots, per-workspace metadata, and per-workspace task tables.
type Catalog struct {
	RootAbsPath      string
	Workspaces       map[string]Info
	TaskConfigs      map[string]TaskConfig
	DefaultWorkspace string
}

// Lookup finds a task definition for (ws, name), returning ok=false if the
// workspace or task is not present.
func (c Catalog) Lookup(ws, name string) (TaskDefinition, bool) {
	tc, ok := c.TaskConfigs[ws]
	if !ok {
		return TaskDefinition{}, false
	}
	def, ok := tc.Tasks[name]
	return def, ok
}

// WorkspacePath returns the absolute path for a workspace id, treating ""
// as the monorepo root.
func (c Catalog) WorkspacePath(ws string) string {
	if ws == "" {
		return c.RootAbsPath
	}
	if info, ok := c.Workspaces[ws]; ok {
		return info.AbsPath
	}
	return ""
}

// WorkspaceEnv returns the env overlay declared at the workspace's task
// config level (not the task's own env).
func (c Catalog) WorkspaceEnv(ws string) map[string]string {
	if tc, ok := c.TaskConfigs[ws]; ok {
		return tc.Env
	}
	return nil
}

// TaskNames lists every task name defined for the given workspace.
func (c Catalog) TaskNames(ws string) []string {
	tc, ok := c.TaskConfigs[ws]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(tc.Tasks))
	for name := range tc.Tasks {
		names = append(names, name)
	}
	return names
}

// AllWorkspaceIDs returns every workspace id, including the root ("").
func (c Catalog) AllWorkspaceIDs() []string {
	ids := make([]string, 0, len(c.Workspaces)+1)
	ids = append(ids, "")
	for id := range c.Workspaces {
		ids = append(ids, id)
	}
	return ids
}
