// internal/types/errors.go
package types

import "errors"

// Sentinel errors shared across stores and services. Callers match
// with errors.Is; user-facing handlers translate them into corrective
// messages. Validation rejections are NOT errors; they are returned
// as first-class dialogue results.
var (
	// ErrConflict signals a second concurrent session or action where
	// only one may be active ("you already have one of these").
	ErrConflict = errors.New("already in progress")

	// ErrNotFound signals an operation referencing a subject or action
	// with no matching state ("nothing to do").
	ErrNotFound = errors.New("not found")

	// ErrBusy signals a timed command issued while the player is
	// occupied by another in-flight action.
	ErrBusy = errors.New("player is busy")
)
