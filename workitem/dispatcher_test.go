package workitem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, concurrency int, onResult func(*types.TestResult)) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherConfig{
		Log:         testLogger(),
		Concurrency: concurrency,
		OnResult:    onResult,
	})
	require.NoError(t, err)
	return d
}

func bodyFor(outcome string) types.TestFunc {
	return func(context.Context) error {
		switch outcome {
		case "fail":
			return types.Fail("failed")
		case "error":
			return errors.New("broken")
		case "skip":
			return types.Skip("skipped")
		case "panic":
			panic("kaboom")
		}
		return nil
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{Concurrency: -1})
	assert.Error(t, err)
}

func TestDetermineConcurrency(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		numJobs     int
		wantMin     int
		wantMax     int
	}{
		{"zero jobs", 4, 0, 0, 0},
		{"user value within jobs", 3, 10, 3, 3},
		{"user value capped at jobs", 8, 3, 3, 3},
		{"auto", 0, 100, 1, min(runtime.NumCPU(), MaxReasonableConcurrency)},
		{"auto single job", 0, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, tt.concurrency, nil)
			got := d.determineConcurrency(tt.numJobs)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestDispatchSummary(t *testing.T) {
	outcomes := []string{"pass", "fail", "error", "skip", "panic", "pass"}
	jobs := make([]Job, 0, len(outcomes))
	for i, outcome := range outcomes {
		jobs = append(jobs, Job{
			Test:    &types.Test{Name: fmt.Sprintf("T%d", i), Body: bodyFor(outcome)},
			Context: newExecContext(),
		})
	}

	var notified atomic.Int32
	d := newDispatcher(t, 3, func(*types.TestResult) { notified.Add(1) })
	summary, err := d.Dispatch(context.Background(), jobs)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, types.TestStatusFail, summary.Status)
	assert.Equal(t, Stats{Total: 6, Passed: 2, Failed: 1, Skipped: 1, Errored: 2}, summary.Stats)
	assert.Equal(t, int32(6), notified.Load())

	require.Len(t, summary.Results, len(jobs))
	for i, result := range summary.Results {
		require.NotNil(t, result)
		assert.Same(t, jobs[i].Test, result.Test, "results must be in job order")
	}
}

func TestDispatchStatus(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []string
		want     types.TestStatus
	}{
		{"all pass", []string{"pass", "pass"}, types.TestStatusPass},
		{"pass and skip", []string{"pass", "skip"}, types.TestStatusPass},
		{"only skips", []string{"skip", "skip"}, types.TestStatusSkip},
		{"error fails the run", []string{"pass", "error"}, types.TestStatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var jobs []Job
			for i, outcome := range tt.outcomes {
				jobs = append(jobs, Job{Test: &types.Test{Name: fmt.Sprintf("T%d", i), Body: bodyFor(outcome)}})
			}
			summary, err := newDispatcher(t, 0, nil).Dispatch(context.Background(), jobs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.Status)
		})
	}
}

func TestDispatchEmpty(t *testing.T) {
	summary, err := newDispatcher(t, 0, nil).Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusSkip, summary.Status)
	assert.Empty(t, summary.Results)
}

func TestDispatchRejectsSharedContext(t *testing.T) {
	shared := newExecContext()
	jobs := []Job{
		{Test: &types.Test{Name: "A", Body: bodyFor("pass")}, Context: shared},
		{Test: &types.Test{Name: "B", Body: bodyFor("pass")}, Context: shared},
	}
	_, err := newDispatcher(t, 2, nil).Dispatch(context.Background(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared")
}

func TestDispatchRejectsNilTest(t *testing.T) {
	_, err := newDispatcher(t, 1, nil).Dispatch(context.Background(), []Job{{}})
	assert.Error(t, err)
}

func TestDispatchRespectsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	body := func(context.Context) error {
		now := running.Add(1)
		mu.Lock()
		if now > peak.Load() {
			peak.Store(now)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	var jobs []Job
	for i := 0; i < 8; i++ {
		jobs = append(jobs, Job{Test: &types.Test{Name: fmt.Sprintf("T%d", i), Body: body}})
	}
	summary, err := newDispatcher(t, 2, nil).Dispatch(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Stats.Passed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatchIsolatesContexts(t *testing.T) {
	base := newExecContext()
	base.Properties["shared"] = "base"

	var jobs []Job
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("T%d", i)
		jobs = append(jobs, Job{
			Test: &types.Test{Name: name, Body: func(ctx context.Context) error {
				execCtx, _ := testcontext.FromContext(ctx)
				execCtx.Properties["shared"] = name
				time.Sleep(time.Millisecond)
				if execCtx.Properties["shared"] != name {
					return types.Fail("property leaked between work items")
				}
				return nil
			}},
			Context: base.Clone(),
		})
	}

	summary, err := newDispatcher(t, 4, nil).Dispatch(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Stats.Passed)
	assert.Equal(t, "base", base.Properties["shared"])
}

func TestDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{{Test: &types.Test{Name: "A", Body: bodyFor("pass")}}}
	summary, err := newDispatcher(t, 1, nil).Dispatch(ctx, jobs)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Nil(t, summary.Results[0])
	assert.Equal(t, 0, summary.Stats.Total)
}
