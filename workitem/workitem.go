// Package workitem executes a single test as a work item and dispatches
// batches of work items to a bounded pool of workers.
package workitem

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/commands"
	"github.com/ethereum-optimism/infra/op-testexec/metrics"
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state of a work item
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Filter decides whether an explicit test was selected by name
type Filter interface {
	IsExplicitMatch(test *types.Test) bool
}

// CompletionHandler is called exactly once, after the result is final
type CompletionHandler func(item *WorkItem)

// WorkItem owns one test, its filter and its execution context for exactly one run
type WorkItem struct {
	id        string
	test      *types.Test
	filter    Filter
	ctx       *testcontext.Context
	assembler *commands.Assembler
	log       log.Logger
	tracer    trace.Tracer
	handlers  []CompletionHandler

	state    atomic.Int32
	result   *types.TestResult
	done     chan struct{}
	complete sync.Once
}

// Option customizes a WorkItem
type Option func(*WorkItem)

// WithAssembler sets the assembler used to build the command chain
func WithAssembler(assembler *commands.Assembler) Option {
	return func(w *WorkItem) {
		w.assembler = assembler
	}
}

// WithCompletionHandler registers a handler for the completion notification
func WithCompletionHandler(handler CompletionHandler) Option {
	return func(w *WorkItem) {
		w.handlers = append(w.handlers, handler)
	}
}

// WithLogger sets the logger of the work item
func WithLogger(logger log.Logger) Option {
	return func(w *WorkItem) {
		w.log = logger
	}
}

// WithTracer sets the tracer used for the work item span
func WithTracer(tracer trace.Tracer) Option {
	return func(w *WorkItem) {
		w.tracer = tracer
	}
}

// WithID overrides the generated work item ID
func WithID(id string) Option {
	return func(w *WorkItem) {
		w.id = id
	}
}

// New creates a work item in the Created state. The execution context must
// not be shared with any other work item that may run concurrently.
func New(test *types.Test, filter Filter, ctx *testcontext.Context, opts ...Option) (*WorkItem, error) {
	if test == nil {
		return nil, fmt.Errorf("test cannot be nil")
	}
	if ctx == nil {
		return nil, fmt.Errorf("execution context cannot be nil")
	}

	w := &WorkItem{
		id:     uuid.New().String(),
		test:   test,
		filter: filter,
		ctx:    ctx,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = ctx.Log()
	}
	w.log = w.log.New("component", "work-item", "test", test.FullName())
	if w.assembler == nil {
		w.assembler = commands.NewAssembler(w.log, nil, nil)
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer("work item")
	}
	return w, nil
}

// ID returns the work item identifier
func (w *WorkItem) ID() string {
	return w.id
}

// Test returns the test executed by this work item
func (w *WorkItem) Test() *types.Test {
	return w.test
}

// Context returns the execution context owned by this work item
func (w *WorkItem) Context() *testcontext.Context {
	return w.ctx
}

// State returns the current lifecycle state
func (w *WorkItem) State() State {
	return State(w.state.Load())
}

// Result returns the final result, or nil until the work item is complete
func (w *WorkItem) Result() *types.TestResult {
	if w.State() != StateComplete {
		return nil
	}
	return w.result
}

// Done is closed once the work item is complete
func (w *WorkItem) Done() <-chan struct{} {
	return w.done
}

// Run executes the work item synchronously. Only the first call has any
// effect. The Go context parents the tracing span; it is never observed for
// cancellation, so a hung body blocks Run. Completion is signalled on every
// path, including faults and panics anywhere in the chain.
func (w *WorkItem) Run(ctx context.Context) {
	if !w.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		w.log.Error("Work item can only be run once", "id", w.id, "state", w.State())
		return
	}

	_, span := w.tracer.Start(ctx, fmt.Sprintf("test %s", w.test.FullName()))
	defer span.End()
	defer func() {
		if w.result != nil {
			span.SetAttributes(
				attribute.String("result", string(w.result.State.Status)),
				attribute.String("label", w.result.State.Label),
			)
		}
		w.workItemComplete()
	}()

	w.performWork()
}

func (w *WorkItem) performWork() {
	start := time.Now()
	w.ctx.CurrentTest = w.test
	w.ctx.CurrentResult = types.NewTestResult(w.test)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Panic escaped the command chain", "id", w.id, "panic", r)
			w.recordFault(types.FromPanic(r))
		}
		w.finalize(start)
	}()

	command := w.makeCommand()
	result, err := command.Execute(w.ctx)
	if result != nil {
		w.ctx.CurrentResult = result
	}
	if err != nil {
		w.log.Warn("Fault escaped the command chain", "id", w.id, "err", err)
		w.recordFault(err)
	}
}

// makeCommand decides between the full chain and the skip terminal
func (w *WorkItem) makeCommand() commands.TestCommand {
	switch {
	case w.test.RunState == types.RunStateRunnable,
		w.test.RunState == types.RunStateExplicit && w.filter != nil && w.filter.IsExplicitMatch(w.test):
		return w.assembler.Build(w.test, w.ctx)
	default:
		w.log.Debug("Skipping test", "runState", w.test.RunState)
		return commands.NewSkipCommand(w.test)
	}
}

// recordFault converts an intercepted fault into an error outcome. Skip
// errors keep whatever outcome they produce; earlier failure messages are
// kept by RecordError.
func (w *WorkItem) recordFault(err error) {
	metrics.RecordFault()
	result := w.ctx.CurrentResult
	result.RecordError(err)
	if !types.IsSkipError(err) && result.State.Status != types.TestStatusError {
		result.State = types.ResultStateError.WithSite(result.State.Site)
	}
}

func (w *WorkItem) finalize(start time.Time) {
	result := w.ctx.CurrentResult
	result.StartTime = start
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	if w.ctx.Out != nil && w.ctx.Out.Len() > 0 {
		result.Output = w.ctx.Out.String()
	}
	w.result = result

	metrics.RecordWorkItem(result.State, result.Duration)
	w.log.Debug("Work item finished", "id", w.id, "result", result.State, "duration", result.Duration)
}

func (w *WorkItem) workItemComplete() {
	w.complete.Do(func() {
		w.state.Store(int32(StateComplete))
		close(w.done)
		for _, handler := range w.handlers {
			handler(w)
		}
	})
}
