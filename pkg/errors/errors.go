package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying collaborator failures.
var (
	// ErrTransient marks network/timeout failures. Retryable; any optimistic
	// change tied to one is rolled back.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks a post that vanished remotely. Removed locally,
	// never retried.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a mutation racing a delete. Handled as ErrNotFound.
	ErrConflict = errors.New("conflict")
	// ErrFatal marks a malformed collaborator response. Surfaced without
	// touching local state.
	ErrFatal = errors.New("fatal collaborator failure")
)

// Error is the wrapped error type carried across the engine boundary.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets the classification sentinels match through the wrapper.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Transient wraps err as a retryable failure.
func Transient(err error, message string) error {
	return wrap(ErrTransient, err, message)
}

// NotFound wraps err as a vanished-remotely failure.
func NotFound(err error, message string) error {
	return wrap(ErrNotFound, err, message)
}

// Conflict wraps err as a mutation/delete race.
func Conflict(err error, message string) error {
	return wrap(ErrConflict, err, message)
}

// Fatal wraps err as a malformed-response failure.
func Fatal(err error, message string) error {
	return wrap(ErrFatal, err, message)
}

func wrap(kind, err error, message string) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound reports whether err means the referenced post is gone. Conflict
// collapses into NotFound: a like racing a delete ends the same way.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}

// IsFatal reports whether err is a malformed collaborator response.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// Retryable reports whether the caller may usefully re-attempt the
// operation that produced err.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
