package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes Postgres related failures.
	PostgresErrorMessage = "postgres operation failed"
	// GenerationErrorMessage is returned to callers when the language model fails.
	GenerationErrorMessage = "language model generation failed"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Request validation failures. These are the only errors the workflow raises
// before any node runs.
var (
	ErrMissingScope = errors.New("conversation_id or patient_id and doctor_id is required")
	ErrEmptyMessage = errors.New("message is required")
	// ErrEmptyPrescription rejects a prescription write without content.
	ErrEmptyPrescription = errors.New("prescription content is required")
	// ErrInvalidScope marks a malformed or unrecognised scope identifier. It is
	// recovered locally as an empty history and never reaches the caller.
	ErrInvalidScope = errors.New("invalid scope identifier")
)

// HTTPStatus maps an error from the workflow or the store to a response status.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrMissingScope) || errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrEmptyPrescription) || errors.Is(err, ErrInvalidScope) {
		return http.StatusBadRequest
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if genErr.Kind == KindCanceled {
			return http.StatusRequestTimeout
		}
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
