package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/promptcache"
	"github.com/hupe1980/agentgraph/tokenizer"
	"github.com/hupe1980/agentgraph/tool"
)

// TokenCounter counts prompt tokens for a message list. *tokenizer.Counter
// satisfies it.
type TokenCounter interface {
	CountAll(msgs []core.Message) (int, error)
}

// ExecutorOptions configure the model-backed node executor.
type ExecutorOptions struct {
	// MaxIterations bounds model turns within a single node execution.
	MaxIterations int
	// MaxParallelTools limits concurrent tool executions per model turn
	// (0 = one goroutine per call).
	MaxParallelTools int
	// CacheProfile selects the prompt cache annotation applied to model
	// input. promptcache.ProfileNone disables annotation.
	CacheProfile promptcache.Profile
	// Stream requests streamed responses from models that support them;
	// models that don't always get a non-streaming call.
	Stream bool
	// TokenCounter, together with MaxPromptTokens, bounds the prompt size
	// of every model turn. Leave either unset to disable the check.
	TokenCounter    TokenCounter
	MaxPromptTokens int
	Logger          logging.Logger
}

// WithTokenLimit bounds every model turn's prompt to max tokens, counted
// with the tiktoken encoding for the given model name.
func WithTokenLimit(model string, max int) func(o *ExecutorOptions) {
	return func(o *ExecutorOptions) {
		o.TokenCounter = tokenizer.NewCounter(model)
		o.MaxPromptTokens = max
	}
}

// ModelExecutor is the default NodeExecutor: it drives a node's model in a
// request/response loop, executes requested tool calls concurrently, and
// stops early when a tool requested a transfer.
type ModelExecutor struct {
	opts ExecutorOptions
}

// NewModelExecutor constructs the default executor.
func NewModelExecutor(optFns ...func(o *ExecutorOptions)) *ModelExecutor {
	opts := ExecutorOptions{
		MaxIterations: 10,
		CacheProfile:  promptcache.ProfileNone,
		Stream:        true,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelExecutor{opts: opts}
}

// ExecuteNode runs the model/tool loop for one node against the given
// snapshot. The returned delta contains every message the node produced, in
// order. The transfer tool's own result message is withheld from the delta
// because the router records the handoff with its synthetic acknowledgment.
func (e *ModelExecutor) ExecuteNode(ctx context.Context, in graph.ExecuteInput) (*graph.ExecuteResult, error) {
	input := make([]core.Message, len(in.Messages))
	copy(input, in.Messages)

	if in.InjectedContext != "" {
		input = append(input, core.NewTextMessage(core.RoleUser, in.InjectedContext))
	}

	var delta []core.Message

	for iter := 0; iter < e.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in.Budget != nil {
			left, err := in.Budget.Spend()
			if err != nil {
				return nil, err
			}
			e.opts.Logger.Debug("executor.model.call",
				"node", in.Node.ID, "iteration", iter, "calls_left", left)
		}

		msg, stepID, err := e.modelTurn(ctx, in, input)
		if err != nil {
			return nil, err
		}

		delta = append(delta, *msg)
		input = append(input, *msg)

		calls := msg.ToolCalls()
		if len(calls) == 0 {
			return &graph.ExecuteResult{Messages: delta}, nil
		}

		results, transfer, err := e.executeTools(ctx, in, stepID, input, calls)
		if err != nil {
			return nil, err
		}

		delta = append(delta, results...)
		input = append(input, results...)

		if transfer != nil {
			return &graph.ExecuteResult{Messages: delta, Transfer: transfer}, nil
		}
	}

	return nil, fmt.Errorf("node %s: exceeded %d model turns", in.Node.ID, e.opts.MaxIterations)
}

// modelTurn performs one model call against the accumulated input, relaying
// streamed chunks as typed events scoped to a fresh run step.
func (e *ModelExecutor) modelTurn(ctx context.Context, in graph.ExecuteInput, input []core.Message) (*core.Message, string, error) {
	msgs := input
	if e.opts.CacheProfile != promptcache.ProfileNone {
		msgs = promptcache.Annotate(msgs, e.opts.CacheProfile)
	}

	if e.opts.TokenCounter != nil && e.opts.MaxPromptTokens > 0 {
		n, err := e.opts.TokenCounter.CountAll(msgs)
		if err != nil {
			return nil, "", fmt.Errorf("count prompt tokens: %w", err)
		}
		if n > e.opts.MaxPromptTokens {
			return nil, "", fmt.Errorf("node %s: prompt tokens %d exceed limit %d",
				in.Node.ID, n, e.opts.MaxPromptTokens)
		}
	}

	step := core.NewRunStep(in.Node.ID)
	in.Emit(core.NewStepEvent(step))

	req := model.Request{
		Instructions: in.Instructions,
		Messages:     msgs,
		Tools:        toolDefinitions(in.Tools),
		Stream:       e.opts.Stream && in.Node.Model.Info().SupportsStreaming,
	}

	respCh, errCh := in.Node.Model.Generate(ctx, req)

	var final *core.Message

loop:
	for {
		select {
		case <-ctx.Done():
			return nil, step.ID, ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return nil, step.ID, fmt.Errorf("model call: %w", err)
			}
		case resp, ok := <-respCh:
			if !ok {
				break loop
			}
			if resp.Partial {
				if resp.Chunk != nil {
					e.emitChunk(in, step, resp.Chunk)
				}
				continue
			}
			if resp.Message != nil {
				final = resp.Message
			}
		}
	}

	in.Emit(core.NewStepCompletedEvent(step.ID, step.NodeID))

	if final == nil {
		return nil, step.ID, fmt.Errorf("model %s returned no final message", in.Node.Model.Info().Name)
	}
	if final.ID == "" {
		final.ID = core.NewID()
	}
	if final.Role == "" {
		final.Role = core.RoleAssistant
	}

	in.Emit(core.NewModelEndEvent(step.ID, step.NodeID, *final))

	return final, step.ID, nil
}

// emitChunk translates one streamed chunk into its typed delta event.
func (e *ModelExecutor) emitChunk(in graph.ExecuteInput, step core.RunStep, c *model.Chunk) {
	switch {
	case c.ArgsFragment != "" || c.ToolCallID != "":
		in.Emit(core.NewToolArgsDeltaEvent(step.ID, step.NodeID, c.Index, c.ToolCallID, c.ToolName, c.ArgsFragment))
	case c.Reasoning != "":
		in.Emit(core.NewReasoningDeltaEvent(step.ID, step.NodeID, c.Index, c.Reasoning))
	case c.Text != "":
		in.Emit(core.NewMessageDeltaEvent(step.ID, step.NodeID, c.Index, c.Text))
	}
}

// executeTools runs a batch of tool calls concurrently and returns one tool
// result message per call, in call order. The first transfer request wins;
// its result message is suppressed from the returned batch.
func (e *ModelExecutor) executeTools(
	ctx context.Context,
	in graph.ExecuteInput,
	stepID string,
	snapshot []core.Message,
	calls []core.ToolCallBlock,
) ([]core.Message, *tool.Transfer, error) {
	type toolOutcome struct {
		msg      core.Message
		transfer *tool.Transfer
	}

	outcomes := make([]toolOutcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxParallelTools > 0 {
		g.SetLimit(e.opts.MaxParallelTools)
	}

	var mu sync.Mutex

	for i, call := range calls {
		g.Go(func() error {
			in.Emit(core.NewToolStartEvent(stepID, in.Node.ID, call.ID, call.Name))

			start := time.Now()
			output, transfer, err := e.callTool(gctx, in, snapshot, call)
			e.opts.Logger.Info("executor.tool.executed",
				"node", in.Node.ID,
				"tool", call.Name,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err != nil,
			)

			if err != nil {
				output = map[string]any{"error": err.Error()}
			}

			in.Emit(core.NewToolEndEvent(stepID, in.Node.ID, call.ID, call.Name, output))

			mu.Lock()
			outcomes[i] = toolOutcome{
				msg:      toolResultMessage(call, output),
				transfer: transfer,
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		results  []core.Message
		transfer *tool.Transfer
	)
	for _, o := range outcomes {
		if o.transfer != nil && transfer == nil {
			transfer = o.transfer
			continue
		}
		results = append(results, o.msg)
	}
	return results, transfer, nil
}

// callTool resolves and invokes one tool, recovering panics into errors.
func (e *ModelExecutor) callTool(
	ctx context.Context,
	in graph.ExecuteInput,
	snapshot []core.Message,
	call core.ToolCallBlock,
) (output any, transfer *tool.Transfer, err error) {
	t, ok := in.Tools[call.Name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	var args map[string]any
	if call.Args != "" {
		if uerr := json.Unmarshal([]byte(call.Args), &args); uerr != nil {
			return nil, nil, fmt.Errorf("invalid tool arguments: %w", uerr)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("executor.tool.panic",
				"tool", call.Name, "recover", fmt.Sprintf("%v", r))
			err = fmt.Errorf("tool %s panicked: %v\n%s", call.Name, r, debug.Stack())
		}
	}()

	tc := tool.NewContext(ctx, in.Node.ID, call.ID, snapshot)
	output, err = t.Call(tc, args)
	return output, tc.PendingTransfer(), err
}

// toolResultMessage wraps a tool output in the message shape the reducer and
// model adapters expect.
func toolResultMessage(call core.ToolCallBlock, output any) core.Message {
	return core.Message{
		ID:   core.NewID(),
		Role: core.RoleTool,
		Content: []core.ContentBlock{core.ToolCallBlock{
			ID:     call.ID,
			Name:   call.Name,
			Args:   call.Args,
			Output: output,
		}},
	}
}

// toolDefinitions flattens a tool set for a model request, in sorted name
// order for deterministic requests.
func toolDefinitions(tools map[string]tool.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
