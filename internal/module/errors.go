package module

import (
	"errors"
	"fmt"
)

var (
	// ErrNoComponents is returned for a descriptor without components.
	ErrNoComponents = errors.New("descriptor has no components")
	// ErrUnsupportedFormat is returned when formatVersion has an unknown major version.
	ErrUnsupportedFormat = errors.New("unsupported descriptor format version")
)

// CountMismatchError reports a descriptor whose declared total does not
// match the sum of its components' questionsPerSet.
type CountMismatchError struct {
	ModuleID string
	Declared int
	Computed int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("module %q declares %d questions but components sum to %d",
		e.ModuleID, e.Declared, e.Computed)
}

// ValidationError collects every structural problem found in a descriptor.
type ValidationError struct {
	ModuleID string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid module %q: %s", e.ModuleID, e.Problems[0])
	}
	return fmt.Sprintf("invalid module %q: %d problems, first: %s", e.ModuleID, len(e.Problems), e.Problems[0])
}
