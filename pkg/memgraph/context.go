package memgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
	"github.com/randalmurphal/memgraph/pkg/memgraph/observability"
	"github.com/randalmurphal/memgraph/pkg/memgraph/store"
)

// Context provides execution context to nodes and branches.
// It extends context.Context with run metadata and services.
//
// Context is immutable. The executor creates a new one for every step.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with thread_id, run_id,
	// node_id and step. Never returns nil.
	Logger() *slog.Logger

	// Store returns the long-term store, or nil if not configured.
	// Nodes should check for nil before using.
	Store() store.Store

	// Config returns the run configuration passed to Invoke or Stream.
	Config() config.RunConfig

	// Metadata

	// RunID returns the unique identifier of this invocation.
	RunID() string

	// ThreadID returns the thread this invocation reads and extends.
	ThreadID() string

	// NodeID returns the node being executed.
	NodeID() string

	// Step returns the step number the node's checkpoint will get.
	Step() int

	// Resume returns the value passed with WithResume when this node is
	// being re-run after an interrupt.
	Resume() (any, bool)
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	store     store.Store
	runConfig config.RunConfig
	runID     string
	nodeID    string
	step      int
	resume    any
	hasResume bool
}

func (c *executionContext) Logger() *slog.Logger     { return c.logger }
func (c *executionContext) Config() config.RunConfig { return c.runConfig }
func (c *executionContext) RunID() string            { return c.runID }
func (c *executionContext) ThreadID() string         { return c.runConfig.ThreadID() }
func (c *executionContext) NodeID() string           { return c.nodeID }
func (c *executionContext) Step() int                { return c.step }
func (c *executionContext) Resume() (any, bool)      { return c.resume, c.hasResume }

func (c *executionContext) Store() store.Store { return c.store }

// forNode returns a copy of c addressing nodeID at step.
func (c *executionContext) forNode(ctx context.Context, nodeID string, step int) *executionContext {
	nc := *c
	nc.Context = ctx
	nc.nodeID = nodeID
	nc.step = step
	nc.resume, nc.hasResume = nil, false
	nc.logger = observability.EnrichLogger(c.logger, c.runConfig.ThreadID(), c.runID, nodeID, step)
	return &nc
}

// ContextOption configures a Context created with NewContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger of the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextStore sets the long-term store of the context.
func WithContextStore(s store.Store) ContextOption {
	return func(c *executionContext) {
		c.store = s
	}
}

// WithContextConfig sets the run configuration of the context.
func WithContextConfig(rc config.RunConfig) ContextOption {
	return func(c *executionContext) {
		c.runConfig = rc
	}
}

// WithContextNode sets the node ID and step of the context.
func WithContextNode(nodeID string, step int) ContextOption {
	return func(c *executionContext) {
		c.nodeID = nodeID
		c.step = step
	}
}

// WithContextResume sets the value Resume returns.
func WithContextResume(value any) ContextOption {
	return func(c *executionContext) {
		c.resume = value
		c.hasResume = true
	}
}

// WithContextRunID sets the run identifier of the context.
// If not set, a UUID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates a Context outside a graph run, for calling node
// functions directly in tests or from other code.
//
// Example:
//
//	ctx := memgraph.NewContext(context.Background(),
//	    memgraph.WithContextConfig(config.NewRunConfig("thread-1", nil)),
//	    memgraph.WithContextStore(store.NewMemoryStore()))
//	update, err := chatbot(ctx, state)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}
