package commands

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// Repeat reruns the wrapped command up to count times, stopping at the first
// outcome that is not a success.
func Repeat(count int) CommandWrapper {
	return WrapperFunc(func(command TestCommand) TestCommand {
		return &repeatedCommand{delegatingCommand: delegatingCommand{inner: command}, count: count}
	})
}

type repeatedCommand struct {
	delegatingCommand
	count int
}

func (c *repeatedCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	warnings := slices.Clone(ctx.CurrentResult.Warnings)
	for i := 0; i < c.count; i++ {
		if i > 0 {
			ctx.CurrentResult = freshResult(c.Test(), warnings)
		}
		result, err := c.inner.Execute(ctx)
		if err != nil {
			return result, err
		}
		ctx.CurrentResult = result
		if result.State != types.ResultStateSuccess {
			if i > 0 {
				result.AddWarning("repeat stopped at iteration %d of %d", i+1, c.count)
			}
			break
		}
	}
	return ctx.CurrentResult, nil
}

// Retry reruns the wrapped command while its outcome is a failure, up to
// count attempts in total. Errors and faults are not retried.
func Retry(count int) CommandWrapper {
	return WrapperFunc(func(command TestCommand) TestCommand {
		return &retriedCommand{delegatingCommand: delegatingCommand{inner: command}, count: count}
	})
}

type retriedCommand struct {
	delegatingCommand
	count int
}

func (c *retriedCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	warnings := slices.Clone(ctx.CurrentResult.Warnings)
	for attempt := 1; attempt <= c.count; attempt++ {
		if attempt > 1 {
			ctx.Log().Debug("Retrying test", "test", c.Test().FullName(), "attempt", attempt, "max", c.count)
			ctx.CurrentResult = freshResult(c.Test(), warnings)
		}
		result, err := c.inner.Execute(ctx)
		if err != nil {
			return result, err
		}
		ctx.CurrentResult = result
		if result.State.Status != types.TestStatusFail {
			if attempt > 1 {
				result.AddWarning("passed on attempt %d of %d", attempt, c.count)
			}
			break
		}
	}
	return ctx.CurrentResult, nil
}

// freshResult starts another attempt, keeping the warnings recorded before
// the first one
func freshResult(test *types.Test, warnings []string) *types.TestResult {
	result := types.NewTestResult(test)
	result.Warnings = slices.Clone(warnings)
	return result
}

// MaxTime turns a success that took longer than limit into a failure. It
// measures elapsed time only and never interrupts the wrapped command.
func MaxTime(limit time.Duration) CommandWrapper {
	return WrapperFunc(func(command TestCommand) TestCommand {
		return &maxTimeCommand{delegatingCommand: delegatingCommand{inner: command}, limit: limit}
	})
}

type maxTimeCommand struct {
	delegatingCommand
	limit time.Duration
}

func (c *maxTimeCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	start := time.Now()
	result, err := c.inner.Execute(ctx)
	if err != nil {
		return result, err
	}
	if elapsed := time.Since(start); result.State == types.ResultStateSuccess && elapsed > c.limit {
		result.SetResult(types.ResultStateFailure,
			fmt.Sprintf("elapsed time of %s exceeds maximum of %s", elapsed, c.limit))
	}
	return result, nil
}
