package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/state"
	"github.com/hupe1980/agentgraph/stream"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for delivered events.
	EventBufferSize int
	// MaxModelCalls limits model calls per turn across all nodes.
	MaxModelCalls int
	// MaxHops bounds routing waves per turn.
	MaxHops int
	// Store holds conversations; defaults to in-memory.
	Store state.Store
	// Executor runs individual nodes; defaults to the model-backed executor.
	Executor graph.NodeExecutor
	// Logger receives runner diagnostics.
	Logger logging.Logger
}

// Runner coordinates turns against a graph: it resolves the conversation,
// merges the user input, drives the router, and streams execution events to
// the caller. Public methods are safe for concurrent use.
type Runner struct {
	graph  *graph.Graph
	router *graph.Router

	eventBufferSize int
	store           state.Store
	logger          logging.Logger

	activeTurns map[string]context.CancelFunc
	mu          sync.Mutex
}

// New constructs a Runner for a validated graph with optional overrides.
func New(g *graph.Graph, optFns ...func(o *Options)) *Runner {
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
	if opts.Executor == nil {
		opts.Executor = NewModelExecutor(func(o *ExecutorOptions) {
			o.Logger = opts.Logger
		})
	}

	router := graph.NewRouter(g, opts.Executor, func(o *graph.RouterOptions) {
		o.MaxHops = opts.MaxHops
		o.MaxModelCalls = opts.MaxModelCalls
		o.Logger = opts.Logger
	})

	return &Runner{
		graph:           g,
		router:          router,
		eventBufferSize: opts.EventBufferSize,
		store:           opts.Store,
		logger:          opts.Logger,
		activeTurns:     make(map[string]context.CancelFunc),
	}
}

// Turn is the result of one completed turn.
type Turn struct {
	ID       string
	Path     []string // node ids in completion order
	Messages []core.Message
}

// Run starts an asynchronous turn: it merges the user text into the
// conversation and drives the graph, delivering events as they are emitted.
// The events channel closes when the turn finishes; a turn-level failure
// arrives on the errors channel.
func (r *Runner) Run(
	ctx context.Context,
	conversationID string,
	userText string,
) (string, <-chan core.Event, <-chan error, error) {
	conv, err := r.store.Get(conversationID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("get conversation: %w", err)
	}

	if _, err := conv.ApplyMerge([]core.Message{core.NewTextMessage(core.RoleUser, userText)}); err != nil {
		return "", nil, nil, fmt.Errorf("merge user message: %w", err)
	}

	turnID := core.NewStepID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeTurns[turnID] = cancel
	r.mu.Unlock()

	emit := func(ev core.Event) {
		select {
		case <-ctx.Done():
		case eventsCh <- ev:
		}
	}

	go func() {
		defer func() {
			close(eventsCh)
			close(errorsCh)
			r.mu.Lock()
			delete(r.activeTurns, turnID)
			r.mu.Unlock()
			cancel()
		}()

		path, err := r.router.Run(ctx, conv, emit)
		if err != nil {
			r.logger.Error("runner.turn.failed", "turn", turnID, "error", err.Error())
			select {
			case errorsCh <- fmt.Errorf("turn %s: %w", turnID, err):
			default:
			}
			return
		}

		r.logger.Info("runner.turn.complete",
			"turn", turnID,
			"conversation", conversationID,
			"path", fmt.Sprintf("%v", path),
		)
	}()

	return turnID, eventsCh, errorsCh, nil
}

// RunSync drives one turn to completion and returns the final conversation
// snapshot. Events are optionally fed to an aggregator for content part
// reconstruction.
func (r *Runner) RunSync(
	ctx context.Context,
	conversationID string,
	userText string,
	agg *stream.Aggregator,
) (*Turn, error) {
	conv, err := r.store.Get(conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if _, err := conv.ApplyMerge([]core.Message{core.NewTextMessage(core.RoleUser, userText)}); err != nil {
		return nil, fmt.Errorf("merge user message: %w", err)
	}

	turnID := core.NewStepID()

	emit := func(ev core.Event) {
		if agg != nil {
			agg.Feed(ev)
		}
	}

	path, err := r.router.Run(ctx, conv, emit)
	if err != nil {
		return nil, fmt.Errorf("turn %s: %w", turnID, err)
	}

	return &Turn{
		ID:       turnID,
		Path:     path,
		Messages: conv.Snapshot(),
	}, nil
}

// Cancel aborts a running turn by id.
func (r *Runner) Cancel(turnID string) error {
	r.mu.Lock()
	cancel, ok := r.activeTurns[turnID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("turn %s not found", turnID)
	}
	cancel()
	return nil
}

// Store exposes the conversation store for inspection in tests and examples.
func (r *Runner) Store() state.Store { return r.store }
