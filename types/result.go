package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusInconclusive TestStatus = "inconclusive"
	TestStatusPass         TestStatus = "pass"
	TestStatusFail         TestStatus = "fail"
	TestStatusSkip         TestStatus = "skip"
	TestStatusError        TestStatus = "error"
)

// FailureSite records which stage of the chain produced a non-passing outcome
type FailureSite string

const (
	FailureSiteTest     FailureSite = "test"
	FailureSiteSetUp    FailureSite = "setup"
	FailureSiteTearDown FailureSite = "teardown"
	FailureSiteParent   FailureSite = "parent"
)

// ResultState is an outcome status refined by an optional label and failure site
type ResultState struct {
	Status TestStatus
	Label  string
	Site   FailureSite
}

var (
	ResultStateInconclusive  = ResultState{Status: TestStatusInconclusive}
	ResultStateSuccess       = ResultState{Status: TestStatusPass}
	ResultStateFailure       = ResultState{Status: TestStatusFail, Site: FailureSiteTest}
	ResultStateError         = ResultState{Status: TestStatusError, Site: FailureSiteTest}
	ResultStateSkipped       = ResultState{Status: TestStatusSkip}
	ResultStateIgnored       = ResultState{Status: TestStatusSkip, Label: "Ignored"}
	ResultStateExplicit      = ResultState{Status: TestStatusSkip, Label: "Explicit"}
	ResultStateNotRunnable   = ResultState{Status: TestStatusSkip, Label: "Invalid"}
	ResultStateSetUpError    = ResultState{Status: TestStatusError, Site: FailureSiteSetUp}
	ResultStateTearDownError = ResultState{Status: TestStatusError, Site: FailureSiteTearDown}
)

// WithSite returns a copy of the state attributed to the given site
func (s ResultState) WithSite(site FailureSite) ResultState {
	s.Site = site
	return s
}

func (s ResultState) String() string {
	var b strings.Builder
	b.WriteString(string(s.Status))
	if s.Label != "" {
		b.WriteString(":")
		b.WriteString(s.Label)
	}
	if s.Site != "" && s.Site != FailureSiteTest {
		b.WriteString("@")
		b.WriteString(string(s.Site))
	}
	return b.String()
}

// TestResult captures the outcome of a single work item execution
type TestResult struct {
	Test       *Test
	State      ResultState
	Message    string
	StackTrace string
	Error      error // First fault recorded, if any
	Warnings   []string
	Output     string
	Duration   time.Duration
	StartTime  time.Time
	EndTime    time.Time
}

// NewTestResult creates an inconclusive result for the given test
func NewTestResult(test *Test) *TestResult {
	return &TestResult{
		Test:  test,
		State: ResultStateInconclusive,
	}
}

// Status is shorthand for State.Status
func (r *TestResult) Status() TestStatus {
	return r.State.Status
}

// SetResult replaces the outcome and message
func (r *TestResult) SetResult(state ResultState, message string) {
	r.State = state
	r.Message = message
}

// RecordError converts an error raised by the test into an outcome attributed to the test itself
func (r *TestResult) RecordError(err error) {
	r.RecordErrorAt(err, FailureSiteTest)
}

// RecordErrorAt converts an error into an outcome. Assertion errors become
// failures, skip errors become skipped or ignored outcomes and everything
// else is an error.
//
// A failure or error already on the result is never replaced: the new message
// and stack trace are appended, and anything but an assertion or a skip
// promotes the outcome to an error.
func (r *TestResult) RecordErrorAt(err error, site FailureSite) {
	if err == nil {
		return
	}
	if r.Error == nil {
		r.Error = err
	}

	if r.IsFailure() {
		if !IsAssertionError(err) && !IsSkipError(err) && r.State.Status != TestStatusError {
			r.State = ResultStateError.WithSite(site)
		}
		r.Message = joinLines(r.Message, messageOf(err))
		r.StackTrace = joinLines(r.StackTrace, stackTraceOf(err))
		return
	}

	var skipErr *SkipError
	switch {
	case errors.As(err, &skipErr):
		if skipErr.Ignore {
			r.SetResult(ResultStateIgnored, skipErr.Reason)
		} else {
			r.SetResult(ResultStateSkipped, skipErr.Reason)
		}
		return
	case IsAssertionError(err):
		r.SetResult(ResultStateFailure.WithSite(site), messageOf(err))
	default:
		r.SetResult(ResultStateError.WithSite(site), err.Error())
	}
	r.StackTrace = stackTraceOf(err)
}

// messageOf returns the assertion message or skip reason when err carries
// one, otherwise err.Error()
func messageOf(err error) string {
	var assertErr *AssertionError
	var skipErr *SkipError
	switch {
	case errors.As(err, &assertErr):
		return assertErr.Message
	case errors.As(err, &skipErr):
		return skipErr.Reason
	}
	return err.Error()
}

// RecordTearDownError records a fault raised during teardown. A failure that
// was already recorded is kept; the teardown message is appended to it.
func (r *TestResult) RecordTearDownError(err error) {
	if err == nil {
		return
	}
	if r.Error == nil {
		r.Error = err
	}

	message := "TearDown : " + err.Error()
	trace := stackTraceOf(err)

	if r.IsFailure() {
		r.Message = joinLines(r.Message, message)
		r.StackTrace = joinLines(r.StackTrace, trace)
		return
	}

	r.SetResult(ResultStateTearDownError, message)
	r.StackTrace = trace
}

// AddWarning attaches a non-fatal note to the result
func (r *TestResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// IsSkip reports whether the outcome is any skip-like state
func (r *TestResult) IsSkip() bool {
	return r.State.Status == TestStatusSkip
}

// IsFailure reports whether the outcome is a failure or an error
func (r *TestResult) IsFailure() bool {
	return r.State.Status == TestStatusFail || r.State.Status == TestStatusError
}

// String returns a one-line summary of the result
func (r *TestResult) String() string {
	name := ""
	if r.Test != nil {
		name = r.Test.FullName()
	}
	if r.Message == "" {
		return fmt.Sprintf("%s: %s (%s)", name, r.State, r.Duration)
	}
	return fmt.Sprintf("%s: %s (%s): %s", name, r.State, r.Duration, r.Message)
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackTraceOf returns the frames of the innermost error in the chain that was
// created or annotated with github.com/pkg/errors.
func stackTraceOf(err error) string {
	var trace string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			trace = strings.TrimPrefix(fmt.Sprintf("%+v", st.StackTrace()), "\n")
		}
	}
	return trace
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
