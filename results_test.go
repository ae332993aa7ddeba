package testexec

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testexec/exitcodes"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum-optimism/infra/op-testexec/workitem"
)

func newSummary() *workitem.Summary {
	pass := types.NewTestResult(&types.Test{ID: "a", HierarchyPath: []string{"Root", "Passing"}})
	pass.SetResult(types.ResultStateSuccess, "")
	pass.Duration = 1500 * time.Millisecond

	fail := types.NewTestResult(&types.Test{ID: "b", HierarchyPath: []string{"Root", "Failing"}})
	fail.RecordError(types.Fail("expected 1\ngot 2"))
	fail.Output = "some output"

	return &workitem.Summary{
		RunID:    "run-1",
		Status:   types.TestStatusFail,
		Results:  []*types.TestResult{pass, fail},
		Stats:    workitem.Stats{Total: 2, Passed: 1, Failed: 1},
		Duration: 2 * time.Second,
	}
}

func TestPrintResultsTable(t *testing.T) {
	var buf bytes.Buffer
	printResultsTable(&buf, newSummary())

	out := buf.String()
	assert.Contains(t, out, "Root/Passing")
	assert.Contains(t, out, "Root/Failing")
	assert.Contains(t, out, "expected 1")
	assert.NotContains(t, out, "got 2", "only the first message line is shown")
	assert.Contains(t, out, "TOTAL 2")
	assert.Contains(t, out, "1 PASSED, 1 FAILED, 0 ERRORED, 0 SKIPPED", "footers are upper-cased")
}

func TestPrintFailureOutput(t *testing.T) {
	var buf bytes.Buffer
	printFailureOutput(&buf, newSummary())

	out := buf.String()
	assert.NotContains(t, out, "Root/Passing")
	assert.Contains(t, out, "=== Root/Failing (fail)")
	assert.Contains(t, out, "expected 1\ngot 2")
	assert.Contains(t, out, "--- output\nsome output\n")
}

func TestSummaryString(t *testing.T) {
	assert.Equal(t,
		"run run-1: fail (2 tests: 1 passed, 1 failed, 0 errored, 0 skipped in 2.0s)",
		summaryString(newSummary()))
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✓ pass", getResultString(types.TestStatusPass))
	assert.Equal(t, "✗ fail", getResultString(types.TestStatusFail))
	assert.Equal(t, "✗ error", getResultString(types.TestStatusError))
	assert.Equal(t, "- skip", getResultString(types.TestStatusSkip))
	assert.Equal(t, "? inconclusive", getResultString(types.TestStatusInconclusive))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.0s", formatDuration(0))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "90.0s", formatDuration(90*time.Second))
}

func TestErrorHelpers(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("bad plan"))
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", runtimeErr)))
	assert.False(t, IsRuntimeError(errors.New("plain")))
	assert.False(t, IsRuntimeError(nil))
	assert.Equal(t, "runtime error: bad plan", runtimeErr.Error())

	failure := NewTestFailureError("2 failed")
	assert.True(t, IsTestFailureError(failure))
	assert.False(t, IsTestFailureError(runtimeErr))
	assert.Equal(t, "test failure: 2 failed", failure.Error())
}

func TestErrorsCarryExitCodes(t *testing.T) {
	var exitErr cli.ExitCoder

	require.ErrorAs(t, fmt.Errorf("failed to start: %w", NewRuntimeError(errors.New("bad plan"))), &exitErr)
	assert.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())

	require.ErrorAs(t, fmt.Errorf("failed to start: %w", NewTestFailureError("1 failed")), &exitErr)
	assert.Equal(t, exitcodes.TestFailure, exitErr.ExitCode())
}
