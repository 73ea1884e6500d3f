package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled aborts the run between steps once the admission pool has
// cancelled the run's context. The orchestrator maps it to the
// cancelled outcome instead of the failure path.
var ErrCancelled = errors.New("pipeline cancelled by user")

// ErrNoBuyers is raised by ranking when every discovery search came
// back empty. There is nothing to report on, so the run fails.
var ErrNoBuyers = errors.New("No buyers found across all searches — cannot generate report")

// ValidationError rejects webhook input before any provider call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// StepTimeoutError marks a step that exhausted its configured budget.
// The executor records it with the timeout audit status.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.Step, e.Timeout)
}

// ExternalError wraps a provider, generator, or publisher failure with
// the step that hit it, so the failure audit row and the error payload
// name the step without string surgery.
type ExternalError struct {
	Step string
	Err  error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }
