package commands

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

var _ TestCommand = (*ApplyChangesToContextCommand)(nil)

// ApplyChangesToContextCommand applies context changes in declaration order
// and then runs the inner chain against the changed context.
type ApplyChangesToContextCommand struct {
	delegatingCommand
	changes []ContextChange
}

// NewApplyChangesToContextCommand wraps inner with the given changes
func NewApplyChangesToContextCommand(inner TestCommand, changes []ContextChange) *ApplyChangesToContextCommand {
	return &ApplyChangesToContextCommand{
		delegatingCommand: delegatingCommand{inner: inner},
		changes:           append([]ContextChange(nil), changes...),
	}
}

// Execute records a failing change as an error result and does not run the inner chain
func (c *ApplyChangesToContextCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	for i, change := range c.changes {
		if err := change.ApplyToContext(ctx); err != nil {
			ctx.Log().Warn("Failed to apply context change", "test", c.Test().FullName(), "index", i, "err", err)
			ctx.CurrentResult.RecordError(fmt.Errorf("apply context change %d: %w", i, err))
			return ctx.CurrentResult, nil
		}
	}
	return c.inner.Execute(ctx)
}

// SetProperty sets a named property on the context
func SetProperty(key, value string) ContextChange {
	return ContextChangeFunc(func(ctx *testcontext.Context) error {
		if key == "" {
			return fmt.Errorf("property key cannot be empty")
		}
		ctx.Properties[key] = value
		return nil
	})
}

// SetWorkDirectory sets the working directory recorded on the context
func SetWorkDirectory(dir string) ContextChange {
	return ContextChangeFunc(func(ctx *testcontext.Context) error {
		if dir == "" {
			return fmt.Errorf("work directory cannot be empty")
		}
		ctx.WorkDirectory = dir
		return nil
	})
}

// SetRandomSeed sets the seed tests should use for random data
func SetRandomSeed(seed int64) ContextChange {
	return ContextChangeFunc(func(ctx *testcontext.Context) error {
		ctx.RandomSeed = seed
		return nil
	})
}

// SetTimeout records a per-test timeout. Enforcing it is left to wrappers or
// the scheduler; the chain itself never cancels a running body.
func SetTimeout(timeout time.Duration) ContextChange {
	return ContextChangeFunc(func(ctx *testcontext.Context) error {
		if timeout < 0 {
			return fmt.Errorf("timeout cannot be negative: %s", timeout)
		}
		ctx.TestCaseTimeout = timeout
		return nil
	})
}
