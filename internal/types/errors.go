package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrLimitExceeded      = errors.New("limit exceeded")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrExternalFailure    = errors.New("external failure")
	ErrInvalidArgument    = errors.New("invalid argument")
)

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func PreconditionFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}

func LimitExceeded(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLimitExceeded, fmt.Sprintf(format, args...))
}

func InvalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ExternalFailure wraps an error returned by a storage, generation or analysis
// collaborator. Both ErrExternalFailure and the cause stay reachable through errors.Is.
func ExternalFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &externalError{op: op, err: err}
}

type externalError struct {
	op  string
	err error
}

func (e *externalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExternalFailure, e.op, e.err)
}

func (e *externalError) Unwrap() []error {
	return []error{ErrExternalFailure, e.err}
}
