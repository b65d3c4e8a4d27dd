// Package agentgraph provides a high-level façade over the graph router and
// service abstractions (conversation state, streaming, prompt caching and
// logging) for constructing multi-agent task graphs. Most applications
// interact with this package by:
//  1. Declaring a graph (nodes plus handoff/direct edges) via graph.NewBuilder
//  2. Creating an AgentGraph via New() (optionally overriding defaults)
//  3. Driving turns asynchronously (Invoke) or synchronously (InvokeSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable conversation
// store and a structured logger.
package agentgraph

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/runner"
	"github.com/hupe1980/agentgraph/state"
	"github.com/hupe1980/agentgraph/stream"
)

// Options configures the AgentGraph instance.
type Options struct {
	// EventBufferSize sets the channel buffer size for event delivery.
	EventBufferSize int

	// MaxModelCalls limits model calls per turn across all nodes.
	MaxModelCalls int

	// MaxHops bounds routing waves per turn, terminating handoff cycles.
	MaxHops int

	// Store holds conversations (defaults to in-memory).
	Store state.Store

	// Executor overrides the model-backed node executor.
	Executor graph.NodeExecutor

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentGraph is the high-level façade aggregating the runner and services.
type AgentGraph struct {
	opts   Options
	runner *runner.Runner
}

// New creates an AgentGraph driving the given validated graph. Any unset
// service is initialized with an in-memory implementation.
func New(g *graph.Graph, optFns ...func(o *Options)) *AgentGraph {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   100,
		MaxHops:         25,
		Store:           state.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(g, func(o *runner.Options) {
		o.EventBufferSize = opts.EventBufferSize
		o.MaxModelCalls = opts.MaxModelCalls
		o.MaxHops = opts.MaxHops
		o.Store = opts.Store
		o.Executor = opts.Executor
		o.Logger = opts.Logger
	})

	return &AgentGraph{opts: opts, runner: r}
}

// Invoke starts an asynchronous turn returning event and error channels.
func (a *AgentGraph) Invoke(
	ctx context.Context,
	conversationID string,
	userText string,
) (string, <-chan core.Event, <-chan error, error) {
	return a.runner.Run(ctx, conversationID, userText)
}

// InvokeSync drives a turn to completion, optionally reconstructing content
// parts through an aggregator, and returns the turn result.
func (a *AgentGraph) InvokeSync(
	ctx context.Context,
	conversationID string,
	userText string,
	agg *stream.Aggregator,
) (*runner.Turn, error) {
	return a.runner.RunSync(ctx, conversationID, userText, agg)
}

// Cancel aborts a running turn by id.
func (a *AgentGraph) Cancel(turnID string) error { return a.runner.Cancel(turnID) }

// Store exposes the conversation store.
func (a *AgentGraph) Store() state.Store { return a.runner.Store() }
