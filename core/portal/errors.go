package portal

import (
	"errors"
	"fmt"
)

// Error kinds. Flows wrap them in *Error so callers can match with errors.Is.
var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrNotFound                 = errors.New("audio not found")
	ErrPersistence              = errors.New("persistence failure")
	ErrTranscription            = errors.New("transcription failed")
	ErrTranscriptionUnavailable = errors.New("transcription not available")
)

// Error is a flow failure: which operation failed, in which category, and why.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Cause returns the message of the underlying cause, or of the kind when there is none.
func (e *Error) Cause() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalid(op, format string, args ...interface{}) *Error {
	return newError(ErrInvalidInput, op, fmt.Errorf(format, args...))
}
