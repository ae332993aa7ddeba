// Package exitcodes defines the standard exit codes used by op-testexec.
package exitcodes

// Exit code constants used by op-testexec:
//
// * Success (0): every executed test passed or was skipped
// * TestFailure (1): one or more tests failed or errored
// * RuntimeErr (2): the run itself could not complete, e.g. an unreadable plan
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
