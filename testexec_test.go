package testexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

const passingPlan = `version: "1.0"
tests:
  - name: Root/Suite/Passing
    categories: [smoke]
    body:
      output: hello
  - name: Root/Suite/Selected
    run_state: explicit
    body:
      outcome: pass
  - name: Root/Suite/Skipped
    run_state: skipped
    skip_reason: later
`

const failingPlan = `version: "1.0"
tests:
  - name: Root/Suite/NoBody
  - name: Root/Suite/Failing
    body:
      outcome: fail
      message: nope
  - name: Root/Suite/Erroring
    body:
      outcome: error
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestConfig(t *testing.T, plan string) *Config {
	t.Helper()
	path := writePlan(t, plan)
	return &Config{
		PlanFile:   path,
		RunOnce:    true,
		WorkDir:    filepath.Dir(path),
		RandomSeed: 7,
		Log:        log.NewLogger(log.DiscardHandler()),
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "v0", func(error) {})
	assert.Error(t, err)
}

func TestNewRejectsBadPlan(t *testing.T) {
	cfg := newTestConfig(t, "version: \"3.0\"\n")
	_, err := New(context.Background(), cfg, "v0", func(error) {})
	assert.Error(t, err)
}

func TestRunOncePassing(t *testing.T) {
	cfg := newTestConfig(t, passingPlan)
	shutdown := make(chan error, 1)

	exec, err := New(context.Background(), cfg, "v0", func(err error) { shutdown <- err })
	require.NoError(t, err)
	require.NoError(t, exec.Start(context.Background()))

	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}

	require.NotNil(t, exec.summary)
	assert.Equal(t, types.TestStatusPass, exec.summary.Status)
	assert.Equal(t, 3, exec.summary.Stats.Total)
	assert.Equal(t, 1, exec.summary.Stats.Passed)
	assert.Equal(t, 2, exec.summary.Stats.Skipped, "explicit test is not selected without an explicit filter")
	assert.Equal(t, "hello\n", exec.summary.Results[0].Output)

	require.NoError(t, exec.Stop(context.Background()))
	assert.True(t, exec.Stopped())
	require.NoError(t, exec.WaitForShutdown(context.Background()))
}

func TestRunOnceFailing(t *testing.T) {
	cfg := newTestConfig(t, failingPlan)

	exec, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)

	err = exec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, 1, exec.summary.Stats.Failed)
	assert.Equal(t, 2, exec.summary.Stats.Errored, "a test without a body is an error")
	assert.Equal(t, 0, exec.summary.Stats.Skipped)
	assert.Contains(t, exec.summary.Results[0].Message, "has no body")
}

func TestJobsApplySelection(t *testing.T) {
	cfg := newTestConfig(t, passingPlan)
	cfg.Select = []string{"Root/Suite/Selected"}

	exec, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)

	jobs := exec.jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Root/Suite/Selected", jobs[0].Test.FullName())
	assert.Equal(t, int64(7), jobs[0].Context.RandomSeed)
	assert.Equal(t, cfg.WorkDir, jobs[0].Context.WorkDirectory)

	require.NoError(t, exec.runTests())
	assert.Equal(t, 1, exec.summary.Stats.Passed, "a literal selection runs the explicit test")
}

func TestJobsDeriveSeedPerRun(t *testing.T) {
	cfg := newTestConfig(t, passingPlan)
	cfg.RandomSeed = 0

	exec, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)

	jobs := exec.jobs()
	require.Len(t, jobs, 3)
	for _, job := range jobs[1:] {
		assert.Equal(t, jobs[0].Context.RandomSeed, job.Context.RandomSeed)
	}
	assert.NotSame(t, jobs[0].Context, jobs[1].Context)
}

func TestPeriodicRuns(t *testing.T) {
	cfg := newTestConfig(t, passingPlan)
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond

	exec, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)
	require.NoError(t, exec.Start(context.Background()))
	assert.False(t, exec.Stopped())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, exec.Stop(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.WaitForShutdown(ctx))
	assert.True(t, exec.Stopped())
}
