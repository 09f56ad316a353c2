package service

import "errors"

// Error taxonomy of the grading engine. All of these are local and
// recoverable; callers get enough context (wrapped ids and bounds) to render
// a user message. Persistence failures pass through unchanged.
var (
	// ErrNotFound indicates an unknown criterion, task, project or enrollment id.
	ErrNotFound = errors.New("resource not found")
	// ErrOutOfRange indicates a score outside [0, cap]. Writes are rejected,
	// never clamped.
	ErrOutOfRange = errors.New("score out of range")
	// ErrNotEditable indicates a write attempted on a non-editable or
	// derived-only criterion.
	ErrNotEditable = errors.New("criterion is not editable")
	// ErrTaskLocked indicates grading was attempted on a locked task.
	ErrTaskLocked = errors.New("task is locked")
	// ErrInvalidState indicates a structurally inconsistent request, e.g.
	// enabling manual edits on a task-driven criterion.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates a project membership overlap detected at commit time.
	ErrConflict = errors.New("conflicting project membership")
)
