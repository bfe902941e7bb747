// Package graph materializes a DAG of concrete task instances across
// workspaces from a user request, via breadth-first closure over declared
// dependencies.
package graph

import (
	"sort"

	mapset "github.com/deckarep/golang-set"

	"github.com/cockpitdev/cockpit/internal/taskid"
	"github.com/cockpitdev/cockpit/internal/topo"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

// ResolvedTask is an immutable, fully-resolved task instance.
type ResolvedTask struct {
	ID           taskid.ID
	Workspace    taskid.WorkspaceID
	Name         taskid.TaskName
	Definition   workspace.TaskDefinition
	Dependencies []taskid.ID
}

// TaskGraph is the closed set of tasks reached from one or more roots, with
// a topological execution order and a parallel-level partition.
type TaskGraph struct {
	Tasks          map[string]ResolvedTask
	ExecutionOrder []string
	ParallelLevels [][]string
	RootTasks      []string
}

// Build performs the BFS closure described in spec §4.2, starting from the
// given root ids, and returns a fully ordered TaskGraph.
func Build(cat workspace.Catalog, roots []taskid.ID) (*TaskGraph, error) {
	return build(cat, roots, false)
}

// BuildSingle constructs a graph rooted at a single task in one workspace.
func BuildSingle(cat workspace.Catalog, ws taskid.WorkspaceID, name taskid.TaskName) (*TaskGraph, error) {
	return Build(cat, []taskid.ID{{Workspace: ws, Name: name}})
}

// BuildFanOut constructs a graph rooted at the same task name across every
// workspace where that task is defined.
func BuildFanOut(cat workspace.Catalog, name taskid.TaskName) (*TaskGraph, error) {
	var roots []taskid.ID
	ids := cat.AllWorkspaceIDs()
	sort.Strings(ids)
	for _, ws := range ids {
		if _, ok := cat.Lookup(ws, name); ok {
			roots = append(roots, taskid.ID{Workspace: ws, Name: name})
		}
	}
	return Build(cat, roots)
}

// BuildFull constructs the graph of every task across every workspace.
// Dependency ids that fall outside the closed map are filtered out rather
// than failing resolution, so unresolved externals become level-0 nodes.
func BuildFull(cat workspace.Catalog) (*TaskGraph, error) {
	var roots []taskid.ID
	ids := cat.AllWorkspaceIDs()
	sort.Strings(ids)
	for _, ws := range ids {
		names := cat.TaskNames(ws)
		sort.Strings(names)
		for _, name := range names {
			roots = append(roots, taskid.ID{Workspace: ws, Name: name})
		}
	}
	return build(cat, roots, true)
}

func build(cat workspace.Catalog, roots []taskid.ID, filterExternalDeps bool) (*TaskGraph, error) {
	if len(roots) == 0 {
		return &TaskGraph{Tasks: map[string]ResolvedTask{}}, nil
	}

	tasks := make(map[string]ResolvedTask)
	seen := mapset.NewSet()
	queue := make([]taskid.ID, 0, len(roots))
	queue = append(queue, roots...)

	var rootNames []string
	for _, r := range roots {
		rootNames = append(rootNames, r.String())
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		key := id.String()
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)

		def, ok := cat.Lookup(id.Workspace, id.Name)
		if !ok {
			if id.Workspace != "" {
				if _, wsOK := cat.Workspaces[id.Workspace]; !wsOK {
					return nil, &WorkspaceNotFoundError{WorkspaceID: id.Workspace, Available: cat.AllWorkspaceIDs()}
				}
			}
			return nil, &TaskNotFoundError{TaskRef: key, Available: availableTasks(cat)}
		}

		var deps []taskid.ID
		for _, ref := range def.DependsOn {
			depWs, depName, optional := taskid.ParseRef(taskid.Ref{Task: ref.Task, Optional: ref.Optional}, id.Workspace)
			depID := taskid.ID{Workspace: depWs, Name: depName}

			if _, ok := cat.Lookup(depWs, depName); !ok {
				if optional || filterExternalDeps {
					continue
				}
				if depWs != "" {
					if _, wsOK := cat.Workspaces[depWs]; !wsOK {
						return nil, &WorkspaceNotFoundError{WorkspaceID: depWs, Available: cat.AllWorkspaceIDs()}
					}
				}
				return nil, &TaskNotFoundError{TaskRef: depID.String(), Available: availableTasks(cat)}
			}
			deps = append(deps, depID)
			if !seen.Contains(depID.String()) {
				queue = append(queue, depID)
			}
		}

		tasks[key] = ResolvedTask{
			ID:           id,
			Workspace:    id.Workspace,
			Name:         id.Name,
			Definition:   def,
			Dependencies: deps,
		}
	}

	nodeIDs := make([]string, 0, len(tasks))
	depMap := make(map[string][]string, len(tasks))
	for key, t := range tasks {
		nodeIDs = append(nodeIDs, key)
		for _, d := range t.Dependencies {
			depMap[key] = append(depMap[key], d.String())
		}
	}

	order, err := topo.Sort(nodeIDs, depMap)
	if err != nil {
		return nil, err
	}
	levels, err := topo.Levels(nodeIDs, depMap)
	if err != nil {
		return nil, err
	}

	return &TaskGraph{
		Tasks:          tasks,
		ExecutionOrder: order,
		ParallelLevels: levels,
		RootTasks:      rootNames,
	}, nil
}

func availableTasks(cat workspace.Catalog) []string {
	var out []string
	for ws, tc := range cat.TaskConfigs {
		for name := range tc.Tasks {
			out = append(out, taskid.Create(ws, name))
		}
	}
	sort.Strings(out)
	return out
}
