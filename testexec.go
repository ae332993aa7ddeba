// Package testexec runs the tests declared in a plan file as work items and
// reports their results.
package testexec

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/commands"
	"github.com/ethereum-optimism/infra/op-testexec/exitcodes"
	"github.com/ethereum-optimism/infra/op-testexec/filters"
	"github.com/ethereum-optimism/infra/op-testexec/registry"
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum-optimism/infra/op-testexec/workitem"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// executor implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &executor{}

// executor loads a plan and runs its tests, once or periodically.
type executor struct {
	ctx        context.Context
	config     *Config
	version    string
	registry   *registry.Registry
	filter     filters.Filter
	dispatcher *workitem.Dispatcher
	summary    *workitem.Summary

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*executor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating executor with config",
		"plan", config.PlanFile,
		"concurrency", config.Concurrency,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:      config.Log,
		PlanFile: config.PlanFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	filter, err := config.Filter()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	dispatcher, err := workitem.NewDispatcher(workitem.DispatcherConfig{
		Log:         config.Log,
		Assembler:   commands.NewAssembler(config.Log, reg, nil),
		Filter:      filter,
		Concurrency: config.Concurrency,
		OnResult: func(result *types.TestResult) {
			config.Log.Debug("Test finished", "test", result.Test.FullName(), "result", result.State)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	config.Log.Info("testexec.New: created registry and dispatcher", "tests", len(reg.GetTests()))

	return &executor{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		filter:           filter,
		dispatcher:       dispatcher,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the plan immediately and then at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (e *executor) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			e.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	e.ctx = ctx
	e.done = make(chan struct{})
	e.running.Store(true)

	if e.config.RunOnce {
		e.config.Log.Info("Starting op-testexec in run-once mode")
	} else {
		e.config.Log.Info("Starting op-testexec in continuous mode", "interval", e.config.RunInterval)
	}

	if err := e.runTests(); err != nil {
		e.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if e.config.RunOnce {
		e.config.Log.Info("Tests completed, exiting (run-once mode)")

		if e.summary != nil && e.summary.Status == types.TestStatusFail {
			e.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(summaryString(e.summary))
		}

		go func() {
			e.shutdownCallback(nil)
		}()
		return nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.config.Log.Debug("Starting periodic test runner goroutine", "interval", e.config.RunInterval)

		for {
			select {
			case <-time.After(e.config.RunInterval):
				if !e.running.Load() {
					e.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}

				e.config.Log.Info("Running periodic tests")
				if err := e.runTests(); err != nil {
					e.config.Log.Error("Error running periodic tests", "error", err)
				}

			case <-e.done:
				e.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				e.config.Log.Debug("Context canceled, stopping periodic test runner")
				e.running.Store(false)
				return
			}
		}
	}()
	e.config.Log.Debug("op-testexec started successfully")
	return nil
}

// runTests dispatches one run and prints its results
func (e *executor) runTests() error {
	jobs := e.jobs()
	e.config.Log.Info("Running tests...", "selected", len(jobs), "declared", len(e.registry.GetTests()))

	summary, err := e.dispatcher.Dispatch(e.ctx, jobs)
	if err != nil {
		e.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	e.summary = summary

	printResultsTable(os.Stdout, summary)
	if e.config.ShowOutput {
		printFailureOutput(os.Stdout, summary)
	}
	fmt.Println(summaryString(summary))
	e.config.Log.Info("Test run completed", "run_id", summary.RunID, "status", summary.Status)
	return nil
}

// jobs gives every selected test a fresh execution context. The random seed
// is shared by all tests of one run so that a run can be reproduced.
func (e *executor) jobs() []workitem.Job {
	seed := e.config.RandomSeed
	if seed == 0 {
		seed = rand.Int64()
	}

	var jobs []workitem.Job
	for _, test := range e.registry.GetTests() {
		if !e.filter.Pass(test) {
			continue
		}
		jobs = append(jobs, workitem.Job{
			Test: test,
			Context: testcontext.New(e.ctx,
				testcontext.WithLogger(e.config.Log),
				testcontext.WithUpstreamActions(e.registry.UpstreamActions(test)...),
				testcontext.WithWorkDirectory(e.config.WorkDir),
				testcontext.WithRandomSeed(seed),
			),
		})
	}
	return jobs
}

// Stop stops the op-testexec service.
// Stop implements the cliapp.Lifecycle interface.
func (e *executor) Stop(ctx context.Context) error {
	e.config.Log.Info("Stopping op-testexec")

	if !e.running.Load() {
		e.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	e.running.Store(false)
	close(e.done)

	e.config.Log.Info("op-testexec stopped successfully")
	return nil
}

// Stopped returns true if the op-testexec service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (e *executor) Stopped() bool {
	return !e.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (e *executor) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
