package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/commands"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ commands.DecorationSource = (*Registry)(nil)

// Registry holds the tests declared by a plan file together with their
// method decorations and inherited actions.
type Registry struct {
	config      Config
	tests       []*types.Test
	decorations commands.DecorationMap
	upstream    map[string][]types.Action
	mu          sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log      log.Logger
	PlanFile string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadTests(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(tests)", len(r.tests))

	return r, nil
}

// loadTests reads the plan and converts it into tests
func (r *Registry) loadTests(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := loadPlan(path)
	if err != nil {
		return err
	}

	actions, err := buildActions(plan.Actions)
	if err != nil {
		return fmt.Errorf("failed to build actions: %w", err)
	}

	r.tests = make([]*types.Test, 0, len(plan.Tests))
	r.decorations = make(commands.DecorationMap, len(plan.Tests))
	r.upstream = make(map[string][]types.Action, len(plan.Tests))

	for i, spec := range plan.Tests {
		test, decorations, upstream, err := buildTest(spec, actions)
		if err != nil {
			return fmt.Errorf("test %d (%s): %w", i, spec.Name, err)
		}
		if _, exists := r.upstream[test.ID]; exists {
			return fmt.Errorf("duplicate test ID %s", test.ID)
		}
		r.tests = append(r.tests, test)
		r.decorations[test.ID] = decorations
		r.upstream[test.ID] = upstream
	}
	return nil
}

// GetTests returns all loaded tests in plan order
func (r *Registry) GetTests() []*types.Test {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tests
}

// Decorations returns the method-level providers declared for test
func (r *Registry) Decorations(test *types.Test) commands.MethodDecorations {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decorations.Decorations(test)
}

// UpstreamActions returns the actions test inherits from its suites, root-most first
func (r *Registry) UpstreamActions(test *types.Test) []types.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upstream[test.ID]
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

func buildActions(specs []ActionSpec) (map[string]types.Action, error) {
	actions := make(map[string]types.Action, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("action name cannot be empty")
		}
		if _, exists := actions[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate action %s", spec.Name)
		}

		action := &types.ActionFuncs{
			Name:   spec.Name,
			Target: types.ParseActionTargets(spec.Targets),
		}
		if spec.Before != nil {
			before, err := spec.Before.compile()
			if err != nil {
				return nil, fmt.Errorf("action %s before: %w", spec.Name, err)
			}
			action.Before = hook(before)
		}
		if spec.After != nil {
			after, err := spec.After.compile()
			if err != nil {
				return nil, fmt.Errorf("action %s after: %w", spec.Name, err)
			}
			action.After = hook(after)
		}
		actions[spec.Name] = action
	}
	return actions, nil
}

// hook adapts a step to an action callback, which has no execution context
func hook(fn types.TestFunc) func(*types.Test) error {
	return func(*types.Test) error {
		return fn(context.Background())
	}
}

func buildTest(spec TestSpec, actions map[string]types.Action) (*types.Test, commands.MethodDecorations, []types.Action, error) {
	var decorations commands.MethodDecorations

	_, path := types.ParseTestNameHierarchy(spec.Name)
	if err := types.ValidateHierarchyPath(path); err != nil {
		return nil, decorations, nil, err
	}

	runState, err := types.ParseRunState(spec.RunState)
	if err != nil {
		return nil, decorations, nil, err
	}

	test := &types.Test{
		ID:            spec.ID,
		Name:          path[len(path)-1],
		HierarchyPath: path,
		Categories:    spec.Categories,
		Properties:    spec.Properties,
		RunState:      runState,
		SkipReason:    spec.SkipReason,
	}
	if test.ID == "" {
		test.ID = test.FullName()
	}

	upstream, err := resolveActions(spec.Upstream, actions)
	if err != nil {
		return nil, decorations, nil, fmt.Errorf("upstream: %w", err)
	}
	if test.Actions, err = resolveActions(spec.Actions, actions); err != nil {
		return nil, decorations, nil, err
	}

	for _, level := range spec.Fixture {
		fixture := types.FixtureLevel{Name: level.Name}
		for i, step := range level.SetUp {
			fn, err := step.compile()
			if err != nil {
				return nil, decorations, nil, fmt.Errorf("fixture %s setup %d: %w", level.Name, i, err)
			}
			fixture.SetUp = append(fixture.SetUp, fn)
		}
		for i, step := range level.TearDown {
			fn, err := step.compile()
			if err != nil {
				return nil, decorations, nil, fmt.Errorf("fixture %s teardown %d: %w", level.Name, i, err)
			}
			fixture.TearDown = append(fixture.TearDown, fn)
		}
		test.Fixture = append(test.Fixture, fixture)
	}

	if spec.Body != nil {
		if test.Body, err = spec.Body.compile(); err != nil {
			return nil, decorations, nil, fmt.Errorf("body: %w", err)
		}
	}

	if decorations, err = buildDecorations(spec); err != nil {
		return nil, decorations, nil, err
	}
	return test, decorations, upstream, nil
}

func resolveActions(names []string, actions map[string]types.Action) ([]types.Action, error) {
	resolved := make([]types.Action, 0, len(names))
	for _, name := range names {
		action, ok := actions[name]
		if !ok {
			return nil, fmt.Errorf("unknown action %s", name)
		}
		resolved = append(resolved, action)
	}
	return resolved, nil
}

// buildDecorations maps max_time, repeat and retry to post-wrappers, so each
// attempt includes fixture setup and teardown, and the context section to
// context changes. Wrappers are listed innermost first: max_time times one
// attempt, repeat reruns it and retry reruns the repeated sequence.
func buildDecorations(spec TestSpec) (commands.MethodDecorations, error) {
	var decorations commands.MethodDecorations

	if spec.Repeat < 0 || spec.Retry < 0 {
		return decorations, fmt.Errorf("repeat and retry cannot be negative")
	}
	maxTime, err := parseDuration("max_time", spec.MaxTime)
	if err != nil {
		return decorations, err
	}
	if maxTime > 0 {
		decorations.PostWrappers = append(decorations.PostWrappers, commands.MaxTime(maxTime))
	}
	if spec.Repeat > 1 {
		decorations.PostWrappers = append(decorations.PostWrappers, commands.Repeat(spec.Repeat))
	}
	if spec.Retry > 1 {
		decorations.PostWrappers = append(decorations.PostWrappers, commands.Retry(spec.Retry))
	}

	if spec.Context.isEmpty() {
		return decorations, nil
	}
	for _, key := range slices.Sorted(maps.Keys(spec.Context.Properties)) {
		decorations.ContextChanges = append(decorations.ContextChanges, commands.SetProperty(key, spec.Context.Properties[key]))
	}
	if spec.Context.WorkDir != "" {
		decorations.ContextChanges = append(decorations.ContextChanges, commands.SetWorkDirectory(spec.Context.WorkDir))
	}
	if spec.Context.Seed != nil {
		decorations.ContextChanges = append(decorations.ContextChanges, commands.SetRandomSeed(*spec.Context.Seed))
	}
	timeout, err := parseDuration("timeout", spec.Context.Timeout)
	if err != nil {
		return decorations, err
	}
	if timeout > 0 {
		decorations.ContextChanges = append(decorations.ContextChanges, commands.SetTimeout(timeout))
	}
	return decorations, nil
}
