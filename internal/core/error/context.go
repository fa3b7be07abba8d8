package errx

import (
	"errors"
	"fmt"
)

// ErrContextLoad matches every ContextLoadError via errors.Is.
var ErrContextLoad = errors.New("context load failed")

// ContextLoadError reports that conversation context could not be read,
// either because the store is unreachable or a record is malformed.
// The orchestrator recovers from it by continuing with an empty context.
type ContextLoadError struct {
	Op    string
	Scope string
	Err   error
}

func (e *ContextLoadError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", ErrContextLoad, e.Op, e.Scope, e.Err)
}

func (e *ContextLoadError) Unwrap() error {
	return e.Err
}

func (e *ContextLoadError) Is(target error) bool {
	return target == ErrContextLoad
}

// NewContextLoadError wraps err; nil stays nil.
func NewContextLoadError(op, scope string, err error) error {
	if err == nil {
		return nil
	}
	return &ContextLoadError{Op: op, Scope: scope, Err: err}
}
