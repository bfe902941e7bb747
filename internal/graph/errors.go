package graph

import "fmt"

// TaskNotFoundError is raised when a task id referenced (directly or as a
// dependency) has no matching definition in the workspace model.
type TaskNotFoundError struct {
	TaskRef   string
	Available []string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %q", e.TaskRef)
}

// WorkspaceNotFoundError is raised when a task reference names a workspace
// that does not exist in the catalog.
type WorkspaceNotFoundError struct {
	WorkspaceID string
	Available   []string
}

func (e *WorkspaceNotFoundError) Error() string {
	return fmt.Sprintf("workspace not found: %q", e.WorkspaceID)
}
