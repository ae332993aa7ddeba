package commands

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

var _ TestCommand = (*TestMethodCommand)(nil)

// TestMethodCommand invokes the test body and records its outcome
type TestMethodCommand struct {
	test *types.Test
}

// NewTestMethodCommand creates the leaf command for a test
func NewTestMethodCommand(test *types.Test) *TestMethodCommand {
	return &TestMethodCommand{test: test}
}

func (c *TestMethodCommand) Test() *types.Test {
	return c.test
}

// Execute runs the body. Assertion and skip errors are captured into the
// result; any other error is returned as a fault. A test without a body is
// an error outcome.
func (c *TestMethodCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	result := ctx.CurrentResult
	if c.test.Body == nil {
		result.SetResult(types.ResultStateError, fmt.Sprintf("test %s has no body", c.test.FullName()))
		return result, nil
	}

	ctx.Log().Trace("Invoking test body", "test", c.test.FullName())
	err := c.test.Body(ctx.Go())
	switch {
	case err == nil:
		result.SetResult(types.ResultStateSuccess, "")
	case types.IsAssertionError(err), types.IsSkipError(err):
		result.RecordError(err)
	default:
		return result, err
	}
	return result, nil
}
