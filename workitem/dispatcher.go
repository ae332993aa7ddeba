package workitem

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/commands"
	"github.com/ethereum-optimism/infra/op-testexec/metrics"
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxReasonableConcurrency caps auto-determined concurrency
const MaxReasonableConcurrency = 32

// Job pairs a test with the execution context composed for it. A nil
// context is replaced with a fresh one.
type Job struct {
	Test    *types.Test
	Context *testcontext.Context
}

// Stats holds the per-status totals of a run
type Stats struct {
	Total        int
	Passed       int
	Failed       int
	Skipped      int
	Errored      int
	Inconclusive int
}

// Summary is the outcome of a dispatch run. Results are in job order.
type Summary struct {
	RunID     string
	Status    types.TestStatus
	Results   []*types.TestResult
	Stats     Stats
	StartTime time.Time
	Duration  time.Duration
}

// Dispatcher runs jobs as work items on a bounded pool of workers
type Dispatcher struct {
	log         log.Logger
	assembler   *commands.Assembler
	filter      Filter
	concurrency int
	onResult    func(*types.TestResult)
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Log         log.Logger
	Assembler   *commands.Assembler
	Filter      Filter
	Concurrency int                     // Zero picks a value from the CPU count
	OnResult    func(*types.TestResult) // Called from worker goroutines as items complete
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.Root()
	}
	if cfg.Concurrency > MaxReasonableConcurrency {
		logger.Warn("Very high concurrency requested", "concurrency", cfg.Concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}
	assembler := cfg.Assembler
	if assembler == nil {
		assembler = commands.NewAssembler(logger, nil, nil)
	}
	return &Dispatcher{
		log:         logger.New("component", "dispatcher"),
		assembler:   assembler,
		filter:      cfg.Filter,
		concurrency: cfg.Concurrency,
		onResult:    cfg.OnResult,
	}, nil
}

// determineConcurrency returns the worker count for numJobs jobs
func (d *Dispatcher) determineConcurrency(numJobs int) int {
	if numJobs == 0 {
		return 0
	}
	concurrency := d.concurrency
	if concurrency <= 0 {
		concurrency = min(runtime.NumCPU(), MaxReasonableConcurrency)
	}
	return max(1, min(concurrency, numJobs))
}

// Dispatch runs every job and waits for all started work items to complete.
// Each job must carry its own execution context. Once ctx is cancelled no
// further work items are started; their results stay nil and ctx's error is
// returned along with the partial summary.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
		Results:   make([]*types.TestResult, len(jobs)),
	}
	if len(jobs) == 0 {
		d.log.Debug("No jobs to dispatch")
		summary.Status = types.TestStatusSkip
		return summary, nil
	}

	items, err := d.buildItems(summary, jobs)
	if err != nil {
		return nil, err
	}

	concurrency := d.determineConcurrency(len(items))
	d.log.Info("Dispatching work items", "runID", summary.RunID, "total", len(items), "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		if gctx.Err() != nil {
			d.log.Warn("Dispatch cancelled before all work items started", "runID", summary.RunID)
			break
		}
		g.Go(func() error {
			item.Run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(summary.StartTime)
	summary.Stats = collectStats(summary.Results)
	summary.Status = determineStatus(summary.Stats)
	metrics.RecordRun(summary.RunID, summary.Stats.Passed, summary.Stats.Failed,
		summary.Stats.Skipped, summary.Stats.Errored, summary.Duration)

	d.log.Info("Dispatch completed", "runID", summary.RunID, "status", summary.Status,
		"duration", summary.Duration, "passed", summary.Stats.Passed, "failed", summary.Stats.Failed,
		"skipped", summary.Stats.Skipped, "errored", summary.Stats.Errored)

	return summary, ctx.Err()
}

func (d *Dispatcher) buildItems(summary *Summary, jobs []Job) ([]*WorkItem, error) {
	var mu sync.Mutex
	owners := make(map[*testcontext.Context]string, len(jobs))
	items := make([]*WorkItem, 0, len(jobs))

	for i, job := range jobs {
		if job.Test == nil {
			return nil, fmt.Errorf("job %d has no test", i)
		}
		execCtx := job.Context
		if execCtx == nil {
			execCtx = testcontext.New(nil, testcontext.WithLogger(d.log))
		}
		if owner, ok := owners[execCtx]; ok {
			return nil, fmt.Errorf("execution context of %s is shared with %s", job.Test.FullName(), owner)
		}
		owners[execCtx] = job.Test.FullName()

		index := i
		item, err := New(job.Test, d.filter, execCtx,
			WithAssembler(d.assembler),
			WithLogger(d.log),
			WithCompletionHandler(func(w *WorkItem) {
				result := w.Result()
				mu.Lock()
				summary.Results[index] = result
				mu.Unlock()
				if d.onResult != nil {
					d.onResult(result)
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func collectStats(results []*types.TestResult) Stats {
	var stats Stats
	for _, result := range results {
		if result == nil {
			continue
		}
		stats.Total++
		switch result.Status() {
		case types.TestStatusPass:
			stats.Passed++
		case types.TestStatusFail:
			stats.Failed++
		case types.TestStatusSkip:
			stats.Skipped++
		case types.TestStatusError:
			stats.Errored++
		default:
			stats.Inconclusive++
		}
	}
	return stats
}

// determineStatus fails the run on any failure or error, and skips it when nothing passed
func determineStatus(stats Stats) types.TestStatus {
	switch {
	case stats.Failed > 0 || stats.Errored > 0:
		return types.TestStatusFail
	case stats.Passed > 0:
		return types.TestStatusPass
	default:
		return types.TestStatusSkip
	}
}
