package llm

import (
	"errors"

	errx "github.com/soulra/clinical-router/internal/core/error"
)

// statusCoder is satisfied by errors that carry the HTTP status of a
// non-success response.
type statusCoder interface {
	error
	HTTPStatus() int
}

// classify maps a provider call error to a failure kind. Anything without a
// response status is a transport failure.
func classify(err error) (errx.FailureKind, int) {
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return errx.KindStatus, sc.HTTPStatus()
	}
	return errx.KindUnreachable, 0
}

// statusError adapts a provider-specific status code to statusCoder.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.code }

func withStatus(code int, err error) error {
	if code == 0 {
		return err
	}
	return &statusError{code: code, err: err}
}
