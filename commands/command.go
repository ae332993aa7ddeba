// Package commands provides the nested command chain executed for one test.
//
// The main components are:
//   - TestMethodCommand: the leaf that invokes the test body
//   - SetUpTearDownCommand: runs fixture setup before, and teardown after, the inner chain
//   - TestActionCommand: fires an action's BeforeTest/AfterTest around the inner chain
//   - ApplyChangesToContextCommand: mutates the execution context before the inner chain
//   - SkipCommand: terminal used instead of a chain for tests that must not run
//   - Assembler: composes the chain in the fixed nesting order
package commands

import (
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// TestCommand is one node of a command chain. Execute returns the result held
// by the context; a non-nil error is a fault that was not recovered by this
// node and propagates to the enclosing command.
type TestCommand interface {
	Test() *types.Test
	Execute(ctx *testcontext.Context) (*types.TestResult, error)
}

// delegatingCommand is embedded by every command that owns exactly one inner command
type delegatingCommand struct {
	inner TestCommand
}

func (d delegatingCommand) Test() *types.Test {
	return d.inner.Test()
}

// Inner returns the wrapped command
func (d delegatingCommand) Inner() TestCommand {
	return d.inner
}

// CommandWrapper wraps a command in another command. Method-level pre-wrappers
// and post-wrappers share this shape and differ only in where the Assembler
// applies them.
type CommandWrapper interface {
	Wrap(command TestCommand) TestCommand
}

// WrapperFunc adapts a function to the CommandWrapper interface
type WrapperFunc func(command TestCommand) TestCommand

func (f WrapperFunc) Wrap(command TestCommand) TestCommand {
	return f(command)
}

// ContextChange applies a declared change to the execution context
type ContextChange interface {
	ApplyToContext(ctx *testcontext.Context) error
}

// ContextChangeFunc adapts a function to the ContextChange interface
type ContextChangeFunc func(ctx *testcontext.Context) error

func (f ContextChangeFunc) ApplyToContext(ctx *testcontext.Context) error {
	return f(ctx)
}

// MethodDecorations are the providers attached to a test method, each list in declaration order
type MethodDecorations struct {
	// Wrap only the invocation, beneath setup/teardown and actions
	PreWrappers []CommandWrapper
	// Wrap the entire chain including upstream actions and setup/teardown
	PostWrappers []CommandWrapper
	// Applied to the context before anything else runs
	ContextChanges []ContextChange
}

// DecorationSource resolves the method-level providers for a test
type DecorationSource interface {
	Decorations(test *types.Test) MethodDecorations
}

// DecorationMap is a DecorationSource keyed by test ID
type DecorationMap map[string]MethodDecorations

func (m DecorationMap) Decorations(test *types.Test) MethodDecorations {
	return m[test.ID]
}

// NoDecorations is a DecorationSource that attaches nothing
var NoDecorations DecorationSource = DecorationMap(nil)
