package models

import "errors"

// Error kinds surfaced by the engine. Handlers map these onto HTTP status
// codes; services wrap them with context via fmt.Errorf and %w.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("caller is not the task assignee")
	ErrInvalidState     = errors.New("task is not in a valid state for this operation")
	ErrAlreadyCompleted = errors.New("task is already completed")
	ErrConflict         = errors.New("concurrent modification lost the compare-and-swap race")
)
