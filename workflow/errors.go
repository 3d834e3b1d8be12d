package workflow

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyExists is returned when starting a workflow whose id is
	// already taken by an existing instance.
	ErrAlreadyExists = errors.New("workflow instance already exists")

	// ErrNotFound is returned when no instance exists for the given id.
	ErrNotFound = errors.New("workflow instance not found")

	// ErrInstanceNotRunning is returned when a signal targets an instance
	// that is not currently running. The signal is dropped, never queued.
	ErrInstanceNotRunning = errors.New("workflow instance not running")

	// ErrNonDeterministic is returned when replayed step logic diverges
	// from the recorded decision history.
	ErrNonDeterministic = errors.New("workflow history does not match step logic")

	// errSuspended aborts step execution without recording a terminal
	// state, leaving the instance resumable after restart.
	errSuspended = errors.New("workflow execution suspended")
)

// IsSuspended reports whether err means the runtime is shutting down and the
// instance should stay Running for a later resume.
func IsSuspended(err error) bool {
	return errors.Is(err, errSuspended)
}

// BusinessError is a non-retryable application-level failure (amount too
// large, product not found, capture declined). It propagates immediately to
// trigger compensation instead of being absorbed by activity retries.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// NewBusinessError creates a BusinessError with a stable code and message.
func NewBusinessError(code, format string, args ...interface{}) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsBusinessError reports whether err is an application-level decline.
func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// ActivityError is returned when an activity exhausts its retry attempts.
// It wraps the last cause.
type ActivityError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// CompensationError aggregates failures observed while unwinding the
// compensation stack under the continue-on-error policy.
type CompensationError struct {
	Failures []error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%d compensation(s) failed: %v", len(e.Failures), e.Failures)
}
