package commands

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

var _ TestCommand = (*SetUpTearDownCommand)(nil)

// SetUpTearDownCommand runs the fixture setup hooks, the inner chain and the
// fixture teardown hooks. Setup runs base-most level first; teardown runs in
// the reverse order and only for levels whose setup was started, regardless
// of how setup or the inner chain ended.
type SetUpTearDownCommand struct {
	delegatingCommand
}

// NewSetUpTearDownCommand wraps inner in fixture setup and teardown
func NewSetUpTearDownCommand(inner TestCommand) *SetUpTearDownCommand {
	return &SetUpTearDownCommand{delegatingCommand{inner: inner}}
}

// Execute never returns a fault: setup, inner and teardown faults, including
// panics, are all recorded into the current result.
func (c *SetUpTearDownCommand) Execute(ctx *testcontext.Context) (*types.TestResult, error) {
	levels := c.Test().Fixture
	started := c.runSetUpAndInner(ctx, levels)

	for i := started - 1; i >= 0; i-- {
		c.runTearDown(ctx, levels[i])
	}
	return ctx.CurrentResult, nil
}

// runSetUpAndInner returns the number of fixture levels whose setup was started
func (c *SetUpTearDownCommand) runSetUpAndInner(ctx *testcontext.Context, levels []types.FixtureLevel) (started int) {
	site := types.FailureSiteSetUp
	defer func() {
		if r := recover(); r != nil {
			ctx.Log().Error("Panic in test chain", "test", c.Test().FullName(), "site", site, "panic", r)
			ctx.CurrentResult.RecordErrorAt(types.FromPanic(r), site)
		}
	}()

	for _, level := range levels {
		started++
		for _, hook := range level.SetUp {
			if err := hook(ctx.Go()); err != nil {
				ctx.Log().Debug("Setup failed", "test", c.Test().FullName(), "level", level.Name, "err", err)
				ctx.CurrentResult.RecordErrorAt(fmt.Errorf("setup %s: %w", level.Name, err), types.FailureSiteSetUp)
				return started
			}
		}
	}

	site = types.FailureSiteTest
	result, err := c.inner.Execute(ctx)
	if result != nil {
		ctx.CurrentResult = result
	}
	if err != nil {
		ctx.CurrentResult.RecordError(err)
	}
	return started
}

func (c *SetUpTearDownCommand) runTearDown(ctx *testcontext.Context, level types.FixtureLevel) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Log().Error("Panic in teardown", "test", c.Test().FullName(), "level", level.Name, "panic", r)
			ctx.CurrentResult.RecordTearDownError(types.FromPanic(r))
		}
	}()

	for i := len(level.TearDown) - 1; i >= 0; i-- {
		if err := level.TearDown[i](ctx.Go()); err != nil {
			ctx.Log().Debug("Teardown failed", "test", c.Test().FullName(), "level", level.Name, "err", err)
			ctx.CurrentResult.RecordTearDownError(fmt.Errorf("%s: %w", level.Name, err))
			return
		}
	}
}
