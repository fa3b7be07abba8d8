package errx

import (
	"context"
	"errors"
	"fmt"
)

// ErrGeneration matches every GenerationError via errors.Is.
var ErrGeneration = errors.New("generation failed")

// FailureKind classifies why a generation call failed.
type FailureKind string

const (
	// KindUnreachable covers transport failures: DNS, refused connections, resets.
	KindUnreachable FailureKind = "unreachable"
	// KindStatus is a non-success response from the model service.
	KindStatus FailureKind = "status"
	// KindMalformed is a success response without the expected text.
	KindMalformed FailureKind = "malformed"
	// KindCanceled means the caller's context ended while the call was in flight.
	KindCanceled FailureKind = "canceled"
)

// GenerationError is returned by every Language Generation Client when the
// model call fails. It is never recovered inside the workflow.
type GenerationError struct {
	Provider   string
	Model      string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s (%s/%s): %s", GenerationErrorMessage, e.Provider, e.Model, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// NewGenerationError builds a GenerationError, promoting context cancellation
// and deadline errors to KindCanceled.
func NewGenerationError(provider, model string, kind FailureKind, status int, err error) *GenerationError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &GenerationError{
		Provider:   provider,
		Model:      model,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

// AsGenerationError returns the GenerationError in err's chain, if any.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}
