package performance

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyMissing is matched by errors.Is on a *DependencyError.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrRunCancelled marks an iteration abandoned after its grace period.
	ErrRunCancelled = errors.New("run cancelled")
)

// DependencyError reports a step that could not be built because a slot it
// needs was never set earlier in the iteration.
type DependencyError struct {
	Step string
	Slot string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %q: slot %q is not set", e.Step, e.Slot)
}

func (e *DependencyError) Unwrap() error {
	return ErrDependencyMissing
}

// TransportError wraps a failure to obtain any response for a step.
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
