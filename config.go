package testexec

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testexec/filters"
	"github.com/ethereum-optimism/infra/op-testexec/flags"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	PlanFile    string
	Select      []string      // Glob patterns over full test names
	Categories  []string      // Categories a test must carry one of
	Where       string        // expr-lang selection expression
	Concurrency int           // Number of concurrent work items (0 = auto-determine)
	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run
	WorkDir     string        // Initial working directory of every test
	RandomSeed  int64         // Initial random seed of every test (0 = derive per run)
	ShowOutput  bool          // Print captured output of failing tests
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile, err := filepath.Abs(ctx.String(flags.Plan.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", ctx.String(flags.Plan.Name), err)
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = filepath.Dir(planFile)
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	cfg := &Config{
		PlanFile:    planFile,
		Select:      ctx.StringSlice(flags.Select.Name),
		Categories:  ctx.StringSlice(flags.Category.Name),
		Where:       ctx.String(flags.Where.Name),
		Concurrency: ctx.Int(flags.Concurrency.Name),
		RunInterval: runInterval,
		RunOnce:     runInterval == 0,
		WorkDir:     workDir,
		RandomSeed:  ctx.Int64(flags.RandomSeed.Name),
		ShowOutput:  ctx.Bool(flags.ShowOutput.Name),
		Log:         log,
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", cfg.Concurrency)
	}
	if _, err := cfg.Filter(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Filter combines the selection flags. Each configured criterion must hold;
// with none configured every test passes and no Explicit test is selected.
func (c *Config) Filter() (filters.Filter, error) {
	var parts []filters.Filter

	if len(c.Select) > 0 {
		glob, err := filters.Glob(c.Select...)
		if err != nil {
			return nil, fmt.Errorf("invalid select pattern: %w", err)
		}
		parts = append(parts, glob)
	}
	if len(c.Categories) > 0 {
		parts = append(parts, filters.Category(c.Categories...))
	}
	if c.Where != "" {
		where, err := filters.Where(c.Where)
		if err != nil {
			return nil, err
		}
		parts = append(parts, where)
	}

	switch len(parts) {
	case 0:
		return filters.Empty, nil
	case 1:
		return parts[0], nil
	default:
		return filters.And(parts...), nil
	}
}
