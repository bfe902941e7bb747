// Package taskid implements the reference grammar: parsing "[workspace]:task"
// strings into canonical task ids and back.
package taskid

import "strings"

// WorkspaceID identifies a workspace within the monorepo. The empty string
// denotes the monorepo root.
type WorkspaceID = string

// TaskName is the name of a task within a workspace. It may itself contain
// colons; only the first colon in a task id separates workspace from name.
type TaskName = string

// ID is the canonical (workspaceId, taskName) pair.
type ID struct {
	Workspace WorkspaceID
	Name      TaskName
}

// String renders an ID as "workspaceId:taskName".
func (id ID) String() string {
	return id.Workspace + ":" + id.Name
}

// Create builds the canonical string form of an id.
func Create(ws WorkspaceID, name TaskName) string {
	return ws + ":" + name
}

// Parse inverts Create, splitting on the first colon. A string with no
// colon is treated as a root-workspace task name.
func Parse(s string) ID {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return ID{Workspace: s[:i], Name: s[i+1:]}
	}
	return ID{Workspace: "", Name: s}
}

// Ref is a discriminated union mirroring the spec's TaskRef: either a raw
// reference string or a struct carrying an explicit optionality flag.
type Ref struct {
	// Task is the reference string, e.g. "build", "ws:build", ":build".
	Task string
	// Optional marks a dependency that may be silently dropped if it
	// cannot be resolved. Zero value (false) matches a raw string ref.
	Optional bool
}

// RawRef builds a non-optional Ref from a bare reference string.
func RawRef(ref string) Ref { return Ref{Task: ref} }

// ParseRef normalizes a Ref against the workspace it was declared in,
// returning the canonical (workspace, name, optional) triple.
//
// Reference string forms:
//
//	"name"    -> task "name" in currentWs
//	"ws:name" -> task "name" in workspace "ws"
//	":name"   -> task "name" in the root workspace
func ParseRef(ref Ref, currentWs WorkspaceID) (ws WorkspaceID, name TaskName, optional bool) {
	s := ref.Task
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:], ref.Optional
	}
	return currentWs, s, ref.Optional
}
