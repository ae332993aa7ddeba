package types

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// AssertionError is returned by test bodies whose expectations were not met.
// It yields a Failure result instead of an Error result.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s", e.Message)
}

// Fail creates an AssertionError with a formatted message
func Fail(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// IsAssertionError checks if the error is or wraps an AssertionError
func IsAssertionError(err error) bool {
	var assertErr *AssertionError
	return err != nil && errors.As(err, &assertErr)
}

// SkipError is returned by test bodies that decide at runtime not to run
type SkipError struct {
	Reason string
	Ignore bool // Report as Ignored rather than Skipped
}

func (e *SkipError) Error() string {
	if e.Ignore {
		return fmt.Sprintf("ignored: %s", e.Reason)
	}
	return fmt.Sprintf("skipped: %s", e.Reason)
}

// Skip creates a SkipError reported as Skipped
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Ignore creates a SkipError reported as Ignored
func Ignore(reason string) error {
	return &SkipError{Reason: reason, Ignore: true}
}

// IsSkipError checks if the error is or wraps a SkipError
func IsSkipError(err error) bool {
	var skipErr *SkipError
	return err != nil && errors.As(err, &skipErr)
}

// PanicError carries a value recovered from a panic inside the command chain
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it is itself an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FromPanic converts a recovered value into an error annotated with the
// stack of the recovering goroutine. It must be called from the deferred
// function that recovered, so that the panicking frames are still on the stack.
func FromPanic(recovered any) error {
	return pkgerrors.WithStack(&PanicError{Value: recovered})
}
