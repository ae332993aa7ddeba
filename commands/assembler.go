package commands

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-testexec/metrics"
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

// CompositionDefect describes an upstream action that reached a test even
// though its targets exclude tests. It points at a bug in whatever composed
// the suite hierarchy, not at the test.
type CompositionDefect struct {
	Index   int // Position in the upstream action list
	Action  types.Action
	Targets types.ActionTargets
}

func (d *CompositionDefect) Error() string {
	return fmt.Sprintf("invalid target %s on upstream action %d (%v)", d.Targets, d.Index, d.Action)
}

// DefectReporter is notified of composition defects found during assembly
type DefectReporter interface {
	ReportDefect(ctx *testcontext.Context, test *types.Test, defect *CompositionDefect)
}

// DefectReporterFunc adapts a function to the DefectReporter interface
type DefectReporterFunc func(ctx *testcontext.Context, test *types.Test, defect *CompositionDefect)

func (f DefectReporterFunc) ReportDefect(ctx *testcontext.Context, test *types.Test, defect *CompositionDefect) {
	f(ctx, test, defect)
}

// logDefectReporter logs the defect, counts it and attaches a warning to the current result
type logDefectReporter struct {
	log log.Logger
}

func (r *logDefectReporter) ReportDefect(ctx *testcontext.Context, test *types.Test, defect *CompositionDefect) {
	r.log.Error("Composition defect: upstream action does not target tests",
		"test", test.FullName(), "index", defect.Index, "targets", defect.Targets)
	metrics.RecordCompositionDefect(defect.Targets)
	if ctx.CurrentResult != nil {
		ctx.CurrentResult.AddWarning("%s", defect.Error())
	}
}

// Assembler builds the command chain for a test. It is stateless apart from
// its collaborators and may be shared by concurrently running work items.
type Assembler struct {
	log         log.Logger
	decorations DecorationSource
	reporter    DefectReporter
}

// NewAssembler creates an Assembler. A nil decorations source attaches no
// method-level providers; a nil reporter logs and counts defects.
func NewAssembler(logger log.Logger, decorations DecorationSource, reporter DefectReporter) *Assembler {
	if logger == nil {
		logger = log.Root()
	}
	if decorations == nil {
		decorations = NoDecorations
	}
	if reporter == nil {
		reporter = &logDefectReporter{log: logger}
	}
	return &Assembler{
		log:         logger.New("component", "assembler"),
		decorations: decorations,
		reporter:    reporter,
	}
}

// Build composes a new chain for test. From outermost to innermost:
//
//  1. context changes
//  2. post-wrappers, last declared outermost
//  3. upstream actions, root-most outermost
//  4. setup/teardown
//  5. test-local actions, first declared outermost
//  6. pre-wrappers, last declared outermost
//  7. the invocation
//
// Layers with nothing declared add no command. Upstream actions that do not
// target tests are reported and left out of the chain.
func (a *Assembler) Build(test *types.Test, ctx *testcontext.Context) TestCommand {
	decorations := a.decorations.Decorations(test)

	var command TestCommand = NewTestMethodCommand(test)

	for _, wrapper := range decorations.PreWrappers {
		command = wrapper.Wrap(command)
	}

	for i := len(test.Actions) - 1; i >= 0; i-- {
		action := test.Actions[i]
		if !action.Targets().AppliesToTest() {
			a.log.Trace("Skipping suite-only action on test", "test", test.FullName(), "index", i)
			continue
		}
		command = NewTestActionCommand(command, action)
	}

	command = NewSetUpTearDownCommand(command)

	for i := len(ctx.UpstreamActions) - 1; i >= 0; i-- {
		action := ctx.UpstreamActions[i]
		if !action.Targets().AppliesToTest() {
			a.reporter.ReportDefect(ctx, test, &CompositionDefect{Index: i, Action: action, Targets: action.Targets()})
			continue
		}
		command = NewTestActionCommand(command, action)
	}

	for _, wrapper := range decorations.PostWrappers {
		command = wrapper.Wrap(command)
	}

	if len(decorations.ContextChanges) > 0 {
		command = NewApplyChangesToContextCommand(command, decorations.ContextChanges)
	}

	return command
}
