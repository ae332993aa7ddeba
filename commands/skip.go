package commands

import (
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

var _ TestCommand = (*SkipCommand)(nil)

// SkipCommand is the terminal executed in place of a chain for tests that
// must not run. No setup, teardown or action fires.
type SkipCommand struct {
	test *types.Test
}

// NewSkipCommand creates a skip terminal for test
func NewSkipCommand(test *types.Test) *SkipCommand {
	return &SkipCommand{test: test}
}

func (c *SkipCommand) Test() *types.Test {
	return c.test
}

// Execute sets a skip-like outcome derived from the test's RunState
func (c *SkipCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	result := ctx.CurrentResult
	if result == nil {
		result = types.NewTestResult(c.test)
	}

	switch c.test.RunState {
	case types.RunStateIgnored:
		result.SetResult(types.ResultStateIgnored, c.reason("ignored"))
	case types.RunStateExplicit:
		result.SetResult(types.ResultStateExplicit, c.reason("explicit test not selected"))
	case types.RunStateNotRunnable:
		result.SetResult(types.ResultStateNotRunnable, c.reason("not runnable"))
	default:
		result.SetResult(types.ResultStateSkipped, c.reason("skipped"))
	}
	return result, nil
}

func (c *SkipCommand) reason(fallback string) string {
	if c.test.SkipReason != "" {
		return c.test.SkipReason
	}
	return fallback
}
