package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every lookup miss on projects, stages, assets and items.
var ErrNotFound = errors.New("not found")

var (
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)
	ErrStageNotFound   = fmt.Errorf("stage %w", ErrNotFound)
	ErrAssetNotFound   = fmt.Errorf("asset request %w", ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("checklist item %w", ErrNotFound)
)

// InvalidStateError reports a transition attempted from a state that does not allow it.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid state: %s", e.Op, e.Reason)
}

func InvalidState(op, reason string) error {
	return &InvalidStateError{Op: op, Reason: reason}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
