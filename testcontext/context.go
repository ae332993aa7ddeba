// Package testcontext holds the mutable execution state owned by a single work item.
package testcontext

import (
	"bytes"
	"context"
	"maps"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

type contextKey struct{}

// Context is the execution context of one work item run. It is not safe for
// concurrent use; every concurrently running work item needs its own instance,
// see Clone.
type Context struct {
	// Go context handed to test bodies and fixture hooks
	ctx context.Context
	log log.Logger

	CurrentTest   *types.Test
	CurrentResult *types.TestResult

	// Actions inherited from enclosing suites, root-most first
	UpstreamActions []types.Action

	WorkDirectory   string
	Properties      map[string]string
	RandomSeed      int64
	TestCaseTimeout time.Duration

	// Output written by the running test
	Out *bytes.Buffer
}

// Option customizes a new Context
type Option func(*Context)

// WithLogger sets the logger used by commands running in this context
func WithLogger(logger log.Logger) Option {
	return func(c *Context) {
		c.log = logger
	}
}

// WithUpstreamActions sets the inherited actions in root-to-leaf order
func WithUpstreamActions(actions ...types.Action) Option {
	return func(c *Context) {
		c.UpstreamActions = append([]types.Action(nil), actions...)
	}
}

// WithWorkDirectory sets the initial working directory
func WithWorkDirectory(dir string) Option {
	return func(c *Context) {
		c.WorkDirectory = dir
	}
}

// WithRandomSeed sets the initial random seed
func WithRandomSeed(seed int64) Option {
	return func(c *Context) {
		c.RandomSeed = seed
	}
}

// New creates a context whose bodies observe parent. A nil parent is replaced
// by context.Background().
func New(parent context.Context, opts ...Option) *Context {
	if parent == nil {
		parent = context.Background()
	}
	c := &Context{
		ctx:        parent,
		log:        log.Root(),
		Properties: make(map[string]string),
		Out:        new(bytes.Buffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone returns an independent copy. Slices and maps are copied so that
// changes made while one work item runs never leak into another.
func (c *Context) Clone() *Context {
	clone := *c
	clone.UpstreamActions = append([]types.Action(nil), c.UpstreamActions...)
	clone.Properties = maps.Clone(c.Properties)
	if clone.Properties == nil {
		clone.Properties = make(map[string]string)
	}
	clone.Out = new(bytes.Buffer)
	clone.CurrentTest = nil
	clone.CurrentResult = nil
	return &clone
}

// AddUpstreamAction appends an action accumulated from a suite nearer the test
func (c *Context) AddUpstreamAction(action types.Action) {
	c.UpstreamActions = append(c.UpstreamActions, action)
}

// Log returns the logger for this context
func (c *Context) Log() log.Logger {
	return c.log
}

// SetLog replaces the logger for this context
func (c *Context) SetLog(logger log.Logger) {
	c.log = logger
}

// Go returns a Go context carrying this execution context, to be handed to
// test bodies and hooks.
func (c *Context) Go() context.Context {
	return context.WithValue(c.ctx, contextKey{}, c)
}

// FromContext returns the execution context carried by ctx, if any
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok
}
