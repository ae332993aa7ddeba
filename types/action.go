package types

import "strings"

// ActionTargets classifies where an action applies. Default means the action
// applies wherever it was declared.
type ActionTargets int

const (
	ActionTargetsDefault ActionTargets = 0
	ActionTargetsTest    ActionTargets = 1 << 0
	ActionTargetsSuite   ActionTargets = 1 << 1
)

// AppliesToTest reports whether an action with these targets may wrap a test case
func (a ActionTargets) AppliesToTest() bool {
	return a == ActionTargetsDefault || a&ActionTargetsTest == ActionTargetsTest
}

// String implements the Stringer interface for ActionTargets
func (a ActionTargets) String() string {
	if a == ActionTargetsDefault {
		return "Default"
	}
	var parts []string
	if a&ActionTargetsTest != 0 {
		parts = append(parts, "Test")
	}
	if a&ActionTargetsSuite != 0 {
		parts = append(parts, "Suite")
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// ParseActionTargets converts names like "test", "suite" or "test|suite" into ActionTargets
func ParseActionTargets(s string) ActionTargets {
	var targets ActionTargets
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "test":
			targets |= ActionTargetsTest
		case "suite":
			targets |= ActionTargetsSuite
		}
	}
	return targets
}

// Action is a behavior that fires before and after the invocation it wraps
type Action interface {
	BeforeTest(test *Test) error
	AfterTest(test *Test) error
	Targets() ActionTargets
}

// ActionFuncs adapts plain functions to the Action interface. Nil hooks are no-ops.
type ActionFuncs struct {
	Name   string
	Target ActionTargets
	Before func(test *Test) error
	After  func(test *Test) error
}

var _ Action = (*ActionFuncs)(nil)

func (a *ActionFuncs) BeforeTest(test *Test) error {
	if a.Before == nil {
		return nil
	}
	return a.Before(test)
}

func (a *ActionFuncs) AfterTest(test *Test) error {
	if a.After == nil {
		return nil
	}
	return a.After(test)
}

func (a *ActionFuncs) Targets() ActionTargets {
	return a.Target
}

func (a *ActionFuncs) String() string {
	return a.Name
}
