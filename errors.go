package testexec

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testexec/exitcodes"
)

var (
	_ cli.ExitCoder = (*RuntimeError)(nil)
	_ cli.ExitCoder = (*TestFailureError)(nil)
)

// RuntimeError means the executor itself could not do its job: an unreadable
// plan, an invalid selection or a dispatch that was cancelled. The process
// exits with exitcodes.RuntimeErr.
type RuntimeError struct {
	Err error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ExitCode implements cli.ExitCoder
func (e *RuntimeError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// TestFailureError means the run completed but at least one work item failed
// or errored. The process exits with exitcodes.TestFailure.
type TestFailureError struct {
	Summary string
}

func NewTestFailureError(summary string) *TestFailureError {
	return &TestFailureError{Summary: summary}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Summary)
}

// ExitCode implements cli.ExitCoder
func (e *TestFailureError) ExitCode() int {
	return exitcodes.TestFailure
}

// IsRuntimeError reports whether err is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}

// IsTestFailureError reports whether err is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var target *TestFailureError
	return errors.As(err, &target)
}
