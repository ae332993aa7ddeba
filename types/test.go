// Package types contains the data model shared by the command chain and the work item executor.
package types

import (
	"context"
	"fmt"
	"strings"
)

// RunState classifies whether, and why not, a test will execute
type RunState int

const (
	RunStateNotRunnable RunState = iota
	RunStateRunnable
	RunStateExplicit
	RunStateSkipped
	RunStateIgnored
)

// String implements the Stringer interface for RunState
func (s RunState) String() string {
	switch s {
	case RunStateRunnable:
		return "Runnable"
	case RunStateExplicit:
		return "Explicit"
	case RunStateSkipped:
		return "Skipped"
	case RunStateIgnored:
		return "Ignored"
	case RunStateNotRunnable:
		return "NotRunnable"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// ParseRunState converts a case-insensitive name into a RunState.
// An empty string is treated as Runnable.
func ParseRunState(s string) (RunState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "runnable":
		return RunStateRunnable, nil
	case "explicit":
		return RunStateExplicit, nil
	case "skipped", "skip":
		return RunStateSkipped, nil
	case "ignored", "ignore":
		return RunStateIgnored, nil
	case "notrunnable", "not_runnable", "not-runnable":
		return RunStateNotRunnable, nil
	}
	return RunStateNotRunnable, fmt.Errorf("unknown run state %q", s)
}

// TestFunc is the signature of test bodies and fixture hooks. The execution
// context of the running work item is reachable through testcontext.FromContext.
type TestFunc func(ctx context.Context) error

// FixtureLevel holds the setup and teardown hooks declared at one level of
// the fixture hierarchy.
type FixtureLevel struct {
	Name     string
	SetUp    []TestFunc
	TearDown []TestFunc
}

// Test describes one leaf test case. It is treated as immutable while a work
// item executes it.
type Test struct {
	ID            string
	Name          string
	HierarchyPath []string // Suite path ending with the test name, e.g. ["Root", "Fixture", "TestAdd"]
	Categories    []string
	Properties    map[string]string
	RunState      RunState
	SkipReason    string

	// Actions declared directly on the test, in declaration order
	Actions []Action

	// Fixture levels ordered base-most first
	Fixture []FixtureLevel

	Body TestFunc
}

// FullName returns the "/" joined hierarchy path, falling back to the name
func (t *Test) FullName() string {
	if len(t.HierarchyPath) == 0 {
		return t.Name
	}
	return strings.Join(t.HierarchyPath, "/")
}

// DisplayName returns a short label for logs and tables
func (t *Test) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	if len(t.HierarchyPath) > 0 {
		return t.HierarchyPath[len(t.HierarchyPath)-1]
	}
	return t.ID
}

// HasCategory reports whether the test carries the given category
func (t *Test) HasCategory(category string) bool {
	for _, c := range t.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// ParentPath returns the hierarchy path of the enclosing suite
func (t *Test) ParentPath() []string {
	if len(t.HierarchyPath) <= 1 {
		return nil
	}
	return t.HierarchyPath[:len(t.HierarchyPath)-1]
}

// ParseTestNameHierarchy parses a "/" separated test name and extracts hierarchy information.
// Returns depth (0=top-level, 1=first child, etc.) and the full hierarchy path
func ParseTestNameHierarchy(testName string) (depth int, path []string) {
	if testName == "" {
		return 0, []string{}
	}

	cleanPath := make([]string, 0, strings.Count(testName, "/")+1)
	for _, element := range strings.Split(testName, "/") {
		if element != "" {
			cleanPath = append(cleanPath, element)
		}
	}

	if len(cleanPath) == 0 {
		return 0, []string{}
	}

	return len(cleanPath) - 1, cleanPath
}

// ValidateHierarchyPath checks if a hierarchy path is valid
func ValidateHierarchyPath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("hierarchy path cannot be empty")
	}

	for i, element := range path {
		if element == "" {
			return fmt.Errorf("hierarchy path element at index %d cannot be empty", i)
		}
		if strings.Contains(element, "/") {
			return fmt.Errorf("hierarchy path element '%s' at index %d cannot contain '/' character", element, i)
		}
	}

	return nil
}
