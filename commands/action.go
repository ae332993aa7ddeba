package commands

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

var _ TestCommand = (*TestActionCommand)(nil)

// TestActionCommand fires an action before and after the inner chain
type TestActionCommand struct {
	delegatingCommand
	action types.Action
}

// NewTestActionCommand wraps inner with action
func NewTestActionCommand(inner TestCommand, action types.Action) *TestActionCommand {
	return &TestActionCommand{
		delegatingCommand: delegatingCommand{inner: inner},
		action:            action,
	}
}

// Action returns the wrapped action
func (c *TestActionCommand) Action() types.Action {
	return c.action
}

// Execute runs BeforeTest, the inner chain and AfterTest. When BeforeTest
// fails neither the inner chain nor AfterTest run. AfterTest runs whenever
// BeforeTest succeeded, even if the inner chain returned a fault or panicked;
// a panic is returned as a fault once AfterTest has run.
func (c *TestActionCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	test := c.Test()
	if err := c.action.BeforeTest(test); err != nil {
		return ctx.CurrentResult, fmt.Errorf("action %v before test: %w", c.action, err)
	}

	result, innerErr := c.executeInner(ctx)
	if result != nil {
		ctx.CurrentResult = result
	}

	if err := c.action.AfterTest(test); err != nil {
		afterErr := fmt.Errorf("action %v after test: %w", c.action, err)
		if innerErr != nil {
			return ctx.CurrentResult, errors.Join(innerErr, afterErr)
		}
		return ctx.CurrentResult, afterErr
	}
	return ctx.CurrentResult, innerErr
}

func (c *TestActionCommand) executeInner(ctx *testcontext.Context) (result *types.TestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Log().Error("Panic inside action", "test", c.Test().FullName(), "action", c.action, "panic", r)
			result, err = ctx.CurrentResult, types.FromPanic(r)
		}
	}()
	return c.inner.Execute(ctx)
}
