// Package filters selects tests for a run and decides whether an Explicit
// test was named by the user.
package filters

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter selects tests. Pass decides whether a test takes part in the run;
// IsExplicitMatch decides whether the filter names the test specifically
// enough to run it when its RunState is Explicit.
type Filter interface {
	Pass(test *types.Test) bool
	IsExplicitMatch(test *types.Test) bool
}

// Empty passes every test and explicitly matches none
var Empty Filter = emptyFilter{}

type emptyFilter struct{}

func (emptyFilter) Pass(*types.Test) bool            { return true }
func (emptyFilter) IsExplicitMatch(*types.Test) bool { return false }
func (emptyFilter) String() string                   { return "<empty>" }

// IsEmpty reports whether f is nil or the Empty filter
func IsEmpty(f Filter) bool {
	return f == nil || f == Empty
}

type fullNameFilter struct {
	names []string
}

// FullName matches tests by exact full name or ID
func FullName(names ...string) Filter {
	return &fullNameFilter{names: names}
}

func (f *fullNameFilter) Pass(test *types.Test) bool {
	return slices.Contains(f.names, test.FullName()) || slices.Contains(f.names, test.ID)
}

func (f *fullNameFilter) IsExplicitMatch(test *types.Test) bool {
	return f.Pass(test)
}

func (f *fullNameFilter) String() string {
	return fmt.Sprintf("name in %v", f.names)
}

type globFilter struct {
	patterns []string
}

// Glob matches the "/" separated full name against doublestar patterns, so
// "Suite/**" selects everything below Suite.
func Glob(patterns ...string) (Filter, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return &globFilter{patterns: patterns}, nil
}

func (f *globFilter) Pass(test *types.Test) bool {
	name := test.FullName()
	for _, pattern := range f.patterns {
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// IsExplicitMatch only accepts patterns without wildcards. A wildcard that
// happens to include an explicit test does not select it.
func (f *globFilter) IsExplicitMatch(test *types.Test) bool {
	name := test.FullName()
	for _, pattern := range f.patterns {
		if !strings.ContainsAny(pattern, "*?[{") && pattern == name {
			return true
		}
	}
	return false
}

func (f *globFilter) String() string {
	return fmt.Sprintf("glob %v", f.patterns)
}

type categoryFilter struct {
	categories []string
}

// Category matches tests carrying any of the given categories
func Category(categories ...string) Filter {
	return &categoryFilter{categories: categories}
}

func (f *categoryFilter) Pass(test *types.Test) bool {
	for _, category := range f.categories {
		if test.HasCategory(category) {
			return true
		}
	}
	return false
}

func (f *categoryFilter) IsExplicitMatch(test *types.Test) bool {
	return f.Pass(test)
}

func (f *categoryFilter) String() string {
	return fmt.Sprintf("category in %v", f.categories)
}

// Env is the environment a Where expression is evaluated against
type Env struct {
	ID         string            `expr:"id"`
	Name       string            `expr:"name"`
	FullName   string            `expr:"fullName"`
	Path       []string          `expr:"path"`
	Categories []string          `expr:"categories"`
	Properties map[string]string `expr:"properties"`
	RunState   string            `expr:"runState"`
}

func envOf(test *types.Test) Env {
	return Env{
		ID:         test.ID,
		Name:       test.Name,
		FullName:   test.FullName(),
		Path:       test.HierarchyPath,
		Categories: test.Categories,
		Properties: test.Properties,
		RunState:   test.RunState.String(),
	}
}

type whereFilter struct {
	source  string
	program *vm.Program
}

// Where compiles a boolean expr-lang expression over Env, for example
// `"smoke" in categories && properties.owner == "infra"`.
func Where(expression string) (Filter, error) {
	program, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile where expression %q: %w", expression, err)
	}
	return &whereFilter{source: expression, program: program}, nil
}

// Pass treats an evaluation error as no match
func (f *whereFilter) Pass(test *types.Test) bool {
	output, err := expr.Run(f.program, envOf(test))
	if err != nil {
		return false
	}
	matched, ok := output.(bool)
	return ok && matched
}

func (f *whereFilter) IsExplicitMatch(test *types.Test) bool {
	return f.Pass(test)
}

func (f *whereFilter) String() string {
	return fmt.Sprintf("where %s", f.source)
}

type andFilter struct {
	filters []Filter
}

// And matches when every filter matches. Empty filters are dropped.
func And(filters ...Filter) Filter {
	return &andFilter{filters: compact(filters)}
}

func (f *andFilter) Pass(test *types.Test) bool {
	for _, filter := range f.filters {
		if !filter.Pass(test) {
			return false
		}
	}
	return true
}

// IsExplicitMatch requires every member to pass and at least one to match explicitly
func (f *andFilter) IsExplicitMatch(test *types.Test) bool {
	explicit := false
	for _, filter := range f.filters {
		if !filter.Pass(test) {
			return false
		}
		explicit = explicit || filter.IsExplicitMatch(test)
	}
	return explicit
}

type orFilter struct {
	filters []Filter
}

// Or matches when any filter matches
func Or(filters ...Filter) Filter {
	return &orFilter{filters: compact(filters)}
}

func (f *orFilter) Pass(test *types.Test) bool {
	if len(f.filters) == 0 {
		return true
	}
	for _, filter := range f.filters {
		if filter.Pass(test) {
			return true
		}
	}
	return false
}

func (f *orFilter) IsExplicitMatch(test *types.Test) bool {
	for _, filter := range f.filters {
		if filter.IsExplicitMatch(test) {
			return true
		}
	}
	return false
}

type notFilter struct {
	filter Filter
}

// Not inverts a filter. It never matches explicitly.
func Not(filter Filter) Filter {
	return &notFilter{filter: filter}
}

func (f *notFilter) Pass(test *types.Test) bool {
	return !f.filter.Pass(test)
}

func (f *notFilter) IsExplicitMatch(*types.Test) bool {
	return false
}

func compact(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, filter := range filters {
		if !IsEmpty(filter) {
			out = append(out, filter)
		}
	}
	return out
}
