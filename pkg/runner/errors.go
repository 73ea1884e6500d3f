package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrAtCapacity is the identity CapacityError reports through
	// errors.Is; handlers match on it without caring about the limit.
	ErrAtCapacity = errors.New("max concurrent runs reached")

	// ErrNotActive is returned by Cancel when no live worker exists
	// for the run id.
	ErrNotActive = errors.New("no active pipeline for this run")

	// ErrStopped is returned by Submit and SubmitBatch after Stop.
	ErrStopped = errors.New("run pool is stopped")
)

// CapacityError rejects a single-run submission when the pool already
// has as many live workers as its admission limit. Its message is
// surfaced verbatim by the HTTP layer.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Max concurrent runs (%d) reached", e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrAtCapacity
}
