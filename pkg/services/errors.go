package services

import (
	"errors"
	"fmt"

	"github.com/govsignal/scout/pkg/runner"
)

// Sentinel errors returned by the service layer. The API layer maps these
// onto HTTP status codes.
var (
	// ErrNotFound indicates the requested run or batch does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotActive indicates a kill was requested for a run with no live worker.
	ErrNotActive = runner.ErrNotActive

	// ErrAtCapacity indicates the run pool rejected a new submission.
	ErrAtCapacity = runner.ErrAtCapacity
)

// ValidationError describes invalid request input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
