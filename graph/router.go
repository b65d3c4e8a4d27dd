package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/state"
	"github.com/hupe1980/agentgraph/tool"
)

// ExecuteInput is the explicit execution scope handed to a node executor.
// Nothing is read through ambient lookups: the message snapshot, tool set and
// budget all arrive here.
type ExecuteInput struct {
	Node            *Node
	Instructions    string
	InjectedContext string // immediate context produced by the inbound edge
	Tools           map[string]tool.Tool
	Budget          *core.CallBudget
	Messages        []core.Message // read-only snapshot
	Emit            func(core.Event)
}

// ExecuteResult is what a node execution produced: the message delta to merge
// through the reducer and, when the node invoked a transfer capability, the
// routing directive.
type ExecuteResult struct {
	Messages []core.Message
	Transfer *tool.Transfer
}

// NodeExecutor runs one node against a state snapshot, emitting typed events
// while it streams. The model/tool call implementation behind it is an
// external collaborator.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, in ExecuteInput) (*ExecuteResult, error)
}

// RouterOptions configure a Router.
type RouterOptions struct {
	// MaxHops bounds routing waves per turn, guaranteeing termination of
	// handoff cycles.
	MaxHops int
	// MaxModelCalls is the per-turn model call budget (0 = unlimited).
	MaxModelCalls int
	Logger        logging.Logger
}

// Router drives node execution according to the graph's edge topology: it
// schedules direct fan-out waves, blocks fan-in sinks until every
// contributing branch completes, merges branch deltas through the state
// reducer in completion order, and follows transfer directives exclusively.
type Router struct {
	graph    *Graph
	executor NodeExecutor
	opts     RouterOptions
}

// NewRouter builds a router for a validated graph.
func NewRouter(g *Graph, executor NodeExecutor, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{
		MaxHops: 25,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{graph: g, executor: executor, opts: opts}
}

// execUnit is one scheduled node execution with its inbound transition.
type execUnit struct {
	nodeID   string
	inbound  *link  // nil for the entry node
	payload  string // transfer payload for handoff transitions
	hopStart int    // message count before the hop that produced this unit
}

// waveResult reports one completed node execution.
type waveResult struct {
	unit     execUnit
	delta    []core.Message
	transfer *tool.Transfer
	preLen   int
	err      error
}

// Run executes one turn starting at the graph entry, merging every node's
// output into conv through the reducer. It returns the realized node path in
// completion order.
func (r *Router) Run(ctx context.Context, conv *state.Conversation, emit func(core.Event)) ([]string, error) {
	if emit == nil {
		emit = func(core.Event) {}
	}

	budget := core.NewCallBudget(r.opts.MaxModelCalls)
	excluded := map[string]bool{}
	var path []string

	frontier := []execUnit{{nodeID: r.graph.entry, hopStart: conv.Len()}}

	for hops := 0; len(frontier) > 0; hops++ {
		if hops >= r.opts.MaxHops {
			return path, fmt.Errorf("exceeded max hops %d", r.opts.MaxHops)
		}

		next, err := r.runWave(ctx, conv, frontier, budget, excluded, emit, &path)
		if err != nil {
			return path, err
		}
		frontier = next
	}

	return path, nil
}

// runWave executes a set of seed units plus everything reachable from them
// over direct edges, Kahn-style: a fan-in sink becomes ready only once every
// contributing source in the wave has completed. It returns the handoff
// units for the next wave.
func (r *Router) runWave(
	ctx context.Context,
	conv *state.Conversation,
	seeds []execUnit,
	budget *core.CallBudget,
	excluded map[string]bool,
	emit func(core.Event),
	path *[]string,
) ([]execUnit, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	members := r.waveMembers(seeds)

	// remaining direct in-links per member, counted within the wave only
	remaining := map[string]int{}
	for id := range members {
		for _, l := range r.graph.directIn[id] {
			if members[l.from] {
				remaining[id]++
			}
		}
	}

	var ready []execUnit
	scheduled := map[string]bool{}
	for _, u := range seeds {
		if remaining[u.nodeID] == 0 && !scheduled[u.nodeID] {
			scheduled[u.nodeID] = true
			ready = append(ready, u)
		}
	}

	contributed := map[string]bool{}
	var transfers []execUnit
	results := make(chan waveResult)
	running := 0

	// launch executes a batch of ready units against one shared snapshot,
	// the fan-out point.
	launch := func(units []execUnit) {
		snap := filterExcluded(conv.Snapshot(), excluded)
		for _, u := range units {
			running++
			go func(u execUnit, snap []core.Message) {
				res := r.executeUnit(ctx, u, snap, budget, emit)
				select {
				case results <- res:
				case <-ctx.Done():
				}
			}(u, snap)
		}
	}

	// release resolves one source's direct out-links. Contributing sources
	// unblock their dependents; a cancelled or starved source propagates
	// further so dependents with no remaining contribution are skipped
	// rather than waited on. Returns the units that became ready.
	var release func(id string, contrib bool, hopStart int) []execUnit
	release = func(id string, contrib bool, hopStart int) []execUnit {
		var batch []execUnit
		for _, l := range r.graph.directs[id] {
			if !members[l.to] {
				continue
			}
			remaining[l.to]--
			if contrib {
				contributed[l.to] = true
			}
			if remaining[l.to] != 0 || scheduled[l.to] {
				continue
			}
			scheduled[l.to] = true
			if contributed[l.to] {
				lcopy := l
				batch = append(batch, execUnit{nodeID: l.to, inbound: &lcopy, hopStart: hopStart})
			} else {
				batch = append(batch, release(l.to, false, hopStart)...)
			}
		}
		return batch
	}

	launch(ready)

	var firstErr error
	for running > 0 {
		var res waveResult
		select {
		case <-ctx.Done():
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		case res = <-results:
		}
		running--

		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("node %s: %w", res.unit.nodeID, res.err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue // drain remaining branches after failure
		}

		*path = append(*path, res.unit.nodeID)

		if err := r.mergeResult(conv, res, excluded); err != nil {
			firstErr = err
			cancel()
			continue
		}

		if res.transfer != nil {
			// Exclusive routing: the transfer cancels this source's direct
			// continuation; sibling branches are unaffected.
			r.opts.Logger.Debug("router.transfer",
				"from", res.unit.nodeID, "to", res.transfer.Target)
			transfers = append(transfers, execUnit{
				nodeID:   res.transfer.Target,
				inbound:  r.handoffLink(res.unit.nodeID, res.transfer.Target),
				payload:  res.transfer.Payload,
				hopStart: res.preLen,
			})
			if batch := release(res.unit.nodeID, false, res.preLen); len(batch) > 0 {
				launch(batch)
			}
			continue
		}

		if batch := release(res.unit.nodeID, true, res.preLen); len(batch) > 0 {
			launch(batch)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return dedupeUnits(transfers), nil
}

// waveMembers returns the node set reachable from the seeds over direct
// edges; only members count toward fan-in readiness.
func (r *Router) waveMembers(seeds []execUnit) map[string]bool {
	members := map[string]bool{}
	var stack []string
	for _, u := range seeds {
		stack = append(stack, u.nodeID)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if members[id] {
			continue
		}
		members[id] = true
		for _, l := range r.graph.directs[id] {
			stack = append(stack, l.to)
		}
	}
	return members
}

// executeUnit prepares the explicit execution scope for one node and invokes
// the executor.
func (r *Router) executeUnit(
	ctx context.Context,
	u execUnit,
	snapshot []core.Message,
	budget *core.CallBudget,
	emit func(core.Event),
) waveResult {
	res := waveResult{unit: u, preLen: len(snapshot)}

	node, ok := r.graph.Node(u.nodeID)
	if !ok {
		res.err = fmt.Errorf("unknown node %q", u.nodeID)
		return res
	}

	injected, err := r.injectedContext(u, snapshot)
	if err != nil {
		res.err = err
		return res
	}

	out, err := r.executor.ExecuteNode(ctx, ExecuteInput{
		Node:            node,
		Instructions:    node.Instructions,
		InjectedContext: injected,
		Tools:           r.toolSet(node),
		Budget:          budget,
		Messages:        snapshot,
		Emit:            emit,
	})
	if err != nil {
		res.err = err
		return res
	}

	res.delta = out.Messages
	res.transfer = out.Transfer
	return res
}

// injectedContext resolves the destination's immediate context from its
// inbound edge: an explicit transform wins, then a rendered prompt template,
// then the raw transfer payload.
func (r *Router) injectedContext(u execUnit, history []core.Message) (string, error) {
	if u.inbound == nil || u.inbound.edge == nil {
		return u.payload, nil
	}
	e := u.inbound.edge

	if e.PromptTransform != nil {
		return e.PromptTransform(history, u.hopStart), nil
	}
	if e.Prompt != "" {
		hop := history
		if u.hopStart <= len(history) {
			hop = history[u.hopStart:]
		}
		var hopText string
		for _, m := range hop {
			hopText += m.Text()
		}
		rendered, err := util.RenderTemplate(e.Prompt, map[string]any{
			"History": hopText,
			"Payload": u.payload,
		})
		if err != nil {
			return "", fmt.Errorf("render edge prompt: %w", err)
		}
		return rendered, nil
	}
	return u.payload, nil
}

// toolSet combines the node's own tools with the transfer capabilities
// synthesized for its handoff edges.
func (r *Router) toolSet(node *Node) map[string]tool.Tool {
	links := r.graph.handoffs[node.ID]
	tools := make(map[string]tool.Tool, len(node.Tools)+len(links))
	for name, t := range node.Tools {
		tools[name] = t
	}
	for _, l := range links {
		desc := l.edge.Condition
		if desc == "" {
			desc = l.edge.Description
		}
		t := tool.NewTransferTool(l.to, l.edge.PromptKey, desc)
		tools[t.Name()] = t
	}
	return tools
}

// mergeResult reconciles a branch delta into the conversation, appending the
// synthetic transfer acknowledgment when the branch handed off. Ids are
// assigned up front so exclusion bookkeeping can track them.
func (r *Router) mergeResult(conv *state.Conversation, res waveResult, excluded map[string]bool) error {
	delta := res.delta
	for i := range delta {
		if delta[i].ID == "" && !delta[i].Removal {
			delta[i].ID = core.NewID()
		}
	}

	if res.transfer != nil {
		ack := transferAck(res.transfer)
		delta = append(delta, ack)
	}

	if _, err := conv.ApplyMerge(delta); err != nil {
		return fmt.Errorf("merge branch %s: %w", res.unit.nodeID, err)
	}

	if res.unit.inbound != nil && res.unit.inbound.edge.ExcludeResults {
		for _, m := range delta {
			excluded[m.ID] = true
		}
	}
	return nil
}

// transferAck is the synthetic tool-acknowledgment message recording a
// handoff in the conversation history.
func transferAck(t *tool.Transfer) core.Message {
	return core.Message{
		ID:   core.NewID(),
		Role: core.RoleTool,
		Content: []core.ContentBlock{core.ToolCallBlock{
			ID:     core.NewID(),
			Name:   tool.TransferToolName(t.Target),
			Args:   fmt.Sprintf("{%q:%q}", tool.DefaultTransferParam, t.Payload),
			Output: map[string]any{"transferred": true, "target": t.Target},
		}},
	}
}

// handoffLink finds the declaring link for a realized transfer.
func (r *Router) handoffLink(from, to string) *link {
	for _, l := range r.graph.handoffs[from] {
		if l.to == to {
			lcopy := l
			return &lcopy
		}
	}
	return nil
}

func filterExcluded(msgs []core.Message, excluded map[string]bool) []core.Message {
	if len(excluded) == 0 {
		return msgs
	}
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if !excluded[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func dedupeUnits(units []execUnit) []execUnit {
	seen := map[string]bool{}
	out := units[:0]
	for _, u := range units {
		if seen[u.nodeID] {
			continue
		}
		seen[u.nodeID] = true
		out = append(out, u)
	}
	return out
}
