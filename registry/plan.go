package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum-optimism/infra/op-testexec/testcontext"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-version"
	shellquote "github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// SupportedPlanVersions is the version constraint a plan file must satisfy
const SupportedPlanVersions = ">= 1.0, < 2.0"

// Plan is the on-disk description of the tests to execute
type Plan struct {
	Version string       `yaml:"version" toml:"version"`
	Actions []ActionSpec `yaml:"actions" toml:"actions"`
	Tests   []TestSpec   `yaml:"tests" toml:"tests"`
}

// ActionSpec declares a named action that tests reference by name
type ActionSpec struct {
	Name    string `yaml:"name" toml:"name"`
	Targets string `yaml:"targets" toml:"targets"` // "", "test", "suite" or "test|suite"
	Before  *Step  `yaml:"before" toml:"before"`
	After   *Step  `yaml:"after" toml:"after"`
}

// TestSpec declares one test case
type TestSpec struct {
	ID         string            `yaml:"id" toml:"id"`
	Name       string            `yaml:"name" toml:"name"` // "/" separated hierarchy
	RunState   string            `yaml:"run_state" toml:"run_state"`
	SkipReason string            `yaml:"skip_reason" toml:"skip_reason"`
	Categories []string          `yaml:"categories" toml:"categories"`
	Properties map[string]string `yaml:"properties" toml:"properties"`

	// Upstream action names, root-most first
	Upstream []string `yaml:"upstream" toml:"upstream"`
	Actions  []string `yaml:"actions" toml:"actions"`

	Fixture []FixtureSpec `yaml:"fixture" toml:"fixture"`

	Repeat  int         `yaml:"repeat" toml:"repeat"`
	Retry   int         `yaml:"retry" toml:"retry"`
	MaxTime string      `yaml:"max_time" toml:"max_time"`
	Context ContextSpec `yaml:"context" toml:"context"`

	Body *Step `yaml:"body" toml:"body"`
}

// FixtureSpec declares the hooks of one fixture level
type FixtureSpec struct {
	Name     string `yaml:"name" toml:"name"`
	SetUp    []Step `yaml:"setup" toml:"setup"`
	TearDown []Step `yaml:"teardown" toml:"teardown"`
}

// ContextSpec declares changes applied to the execution context before the test runs
type ContextSpec struct {
	Properties map[string]string `yaml:"properties" toml:"properties"`
	WorkDir    string            `yaml:"work_dir" toml:"work_dir"`
	Seed       *int64            `yaml:"seed" toml:"seed"`
	Timeout    string            `yaml:"timeout" toml:"timeout"`
}

func (c ContextSpec) isEmpty() bool {
	return len(c.Properties) == 0 && c.WorkDir == "" && c.Seed == nil && c.Timeout == ""
}

// Outcome is the scripted result of a step
type Outcome string

const (
	OutcomePass   Outcome = "pass"
	OutcomeFail   Outcome = "fail"
	OutcomeError  Outcome = "error"
	OutcomePanic  Outcome = "panic"
	OutcomeSkip   Outcome = "skip"
	OutcomeIgnore Outcome = "ignore"
)

// Step is a scripted body, hook or action callback. Output is written to the
// captured output, then Sleep elapses, then Run executes, then Outcome applies.
type Step struct {
	Outcome Outcome `yaml:"outcome" toml:"outcome"`
	Message string  `yaml:"message" toml:"message"`
	Output  string  `yaml:"output" toml:"output"`
	Sleep   string  `yaml:"sleep" toml:"sleep"`
	// Command line split with shell quoting rules. Exit status 1 is an
	// assertion failure, any other non-zero status is an error.
	Run string `yaml:"run" toml:"run"`
}

// loadPlan reads a YAML or TOML plan, chosen by file extension
func loadPlan(path string) (*Plan, error) {
	log.Debug("Reading plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("parsing TOML plan: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("parsing YAML plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format %q", filepath.Ext(path))
	}

	if err := checkVersion(plan.Version); err != nil {
		return nil, err
	}
	return &plan, nil
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("plan version is required")
	}
	planVersion, err := version.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid plan version %q: %w", v, err)
	}
	constraint, err := version.NewConstraint(SupportedPlanVersions)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	if !constraint.Check(planVersion) {
		return fmt.Errorf("plan version %s does not satisfy %s", planVersion, SupportedPlanVersions)
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// compile validates the step and returns the function that performs it
func (s Step) compile() (types.TestFunc, error) {
	outcome := s.Outcome
	if outcome == "" {
		outcome = OutcomePass
	}
	switch outcome {
	case OutcomePass, OutcomeFail, OutcomeError, OutcomePanic, OutcomeSkip, OutcomeIgnore:
	default:
		return nil, fmt.Errorf("unknown outcome %q", s.Outcome)
	}

	sleep, err := parseDuration("sleep", s.Sleep)
	if err != nil {
		return nil, err
	}

	var argv []string
	if s.Run != "" {
		argv, err = shellquote.Split(s.Run)
		if err != nil {
			return nil, fmt.Errorf("invalid run command %q: %w", s.Run, err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("run command is empty")
		}
	}

	message := s.Message
	if message == "" {
		message = string(outcome)
	}

	return func(ctx context.Context) error {
		execCtx, _ := testcontext.FromContext(ctx)
		if s.Output != "" && execCtx != nil {
			fmt.Fprintln(execCtx.Out, s.Output)
		}
		if sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if len(argv) > 0 {
			if err := runCommand(ctx, execCtx, argv); err != nil {
				return err
			}
		}

		switch outcome {
		case OutcomeFail:
			return types.Fail("%s", message)
		case OutcomeError:
			return errors.New(message)
		case OutcomePanic:
			panic(message)
		case OutcomeSkip:
			return types.Skip(message)
		case OutcomeIgnore:
			return types.Ignore(message)
		}
		return nil
	}, nil
}

func runCommand(ctx context.Context, execCtx *testcontext.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if execCtx != nil {
		cmd.Dir = execCtx.WorkDirectory
		cmd.Stdout = execCtx.Out
		cmd.Stderr = execCtx.Out
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return types.Fail("command %q exited with status 1", shellquote.Join(argv...))
	default:
		return fmt.Errorf("command %q: %w", shellquote.Join(argv...), err)
	}
}
