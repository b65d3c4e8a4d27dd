// Package graph models the directed graph of agent task nodes and drives its
// execution. Edges are declared with node-set endpoints and classified at
// construction time into handoff edges (realized as callable transfer
// capabilities) and direct edges (unconditional transitions supporting
// fan-out and fan-in). All structural errors surface from Build, before any
// execution starts.
package graph

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

var (
	// ErrAmbiguousEdgeCardinality rejects a many-sources-to-one-destination
	// edge lacking an explicit kind tag.
	ErrAmbiguousEdgeCardinality = errors.New("ambiguous edge cardinality")
	// ErrDanglingEdge rejects an edge endpoint referencing an unknown node.
	ErrDanglingEdge = errors.New("dangling edge endpoint")
	// ErrGraphCycle rejects a cycle of direct edges; such a cycle has no
	// progress guarantee.
	ErrGraphCycle = errors.New("direct edge cycle")
)

// EdgeKind tags an edge's routing behavior. Unset edges are classified by
// the builder.
type EdgeKind int

const (
	// EdgeUnset leaves classification to the builder defaults.
	EdgeUnset EdgeKind = iota
	// EdgeHandoff realizes the edge as an agent-invokable transfer capability.
	EdgeHandoff
	// EdgeDirect realizes the edge as an unconditional transition.
	EdgeDirect
)

// String returns the declaration-surface name of the kind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeHandoff:
		return "handoff"
	case EdgeDirect:
		return "direct"
	default:
		return "unset"
	}
}

// PromptTransform receives the full history and the index marking the start
// of the current hop and returns a string injected as the destination's
// immediate context.
type PromptTransform func(history []core.Message, hopStart int) string

// Edge declares a transition between node sets. Either Prompt (a template
// rendered against the hop history) or PromptTransform may supply the
// destination's injected context; PromptTransform wins when both are set.
type Edge struct {
	From []string
	To   []string
	// Kind optionally forces the classification. A non-empty Condition
	// forces handoff regardless of Kind or destination count.
	Kind      EdgeKind
	Condition string
	// Prompt is a template string rendered with the hop history.
	Prompt          string
	PromptTransform PromptTransform
	// PromptKey overrides the transfer capability's payload parameter name
	// (default "instructions").
	PromptKey string
	// ExcludeResults suppresses relaying the destination's own output
	// further along its outgoing edges.
	ExcludeResults bool
	Description    string
}

// Node is an agent task node: a model, a tool set and standing instructions.
type Node struct {
	ID            string
	Model         model.Model
	Instructions  string
	Tools         map[string]tool.Tool
	MaxModelCalls int // 0 means the runner default
}

// link is one classified (source, destination) pair sharing its declaring
// edge's metadata.
type link struct {
	from, to string
	kind     EdgeKind
	edge     *Edge
}

// Graph is the validated, classified node/edge set ready for routing.
type Graph struct {
	entry string
	nodes map[string]*Node

	handoffs map[string][]link // by source
	directs  map[string][]link // by source
	directIn map[string][]link // by destination
}

// Builder accumulates nodes and edges and validates them into a Graph.
type Builder struct {
	entry string
	nodes []*Node
	edges []Edge
}

// NewBuilder creates a builder whose graph starts execution at entry.
func NewBuilder(entry string) *Builder {
	return &Builder{entry: entry}
}

// AddNode registers a node. Duplicate ids are rejected at Build.
func (b *Builder) AddNode(n *Node) *Builder {
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge registers an edge declaration.
func (b *Builder) AddEdge(e Edge) *Builder {
	b.edges = append(b.edges, e)
	return b
}

// Build validates the declarations and returns the executable graph. All
// fatal structural errors (dangling endpoints, ambiguous many-to-one edges,
// direct cycles with no progress guarantee) are raised here, before any
// execution.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		entry:    b.entry,
		nodes:    map[string]*Node{},
		handoffs: map[string][]link{},
		directs:  map[string][]link{},
		directIn: map[string][]link{},
	}

	for _, n := range b.nodes {
		if n.ID == "" {
			return nil, errors.New("node id must not be empty")
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.nodes[n.ID] = n
	}

	if _, ok := g.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("%w: entry node %q", ErrDanglingEdge, b.entry)
	}

	for i := range b.edges {
		e := &b.edges[i]
		if len(e.From) == 0 || len(e.To) == 0 {
			return nil, fmt.Errorf("edge %d: empty endpoint set", i)
		}
		for _, id := range append(append([]string{}, e.From...), e.To...) {
			if _, ok := g.nodes[id]; !ok {
				return nil, fmt.Errorf("%w: node %q", ErrDanglingEdge, id)
			}
		}

		kind, err := classify(e)
		if err != nil {
			return nil, err
		}

		for _, from := range e.From {
			for _, to := range e.To {
				l := link{from: from, to: to, kind: kind, edge: e}
				switch kind {
				case EdgeHandoff:
					g.handoffs[from] = append(g.handoffs[from], l)
				case EdgeDirect:
					g.directs[from] = append(g.directs[from], l)
					g.directIn[to] = append(g.directIn[to], l)
				}
			}
		}
	}

	if cycle := findDirectCycle(g); cycle != "" {
		return nil, fmt.Errorf("%w: through node %q", ErrGraphCycle, cycle)
	}

	return g, nil
}

// classify resolves an edge's kind by priority: an explicit condition or
// handoff tag wins regardless of destination count; an explicit direct tag is
// honored; untagged single-destination edges default to handoff and untagged
// multi-destination edges to direct fan-out. Untagged many-to-one edges are
// rejected as ambiguous rather than given an inferred default.
func classify(e *Edge) (EdgeKind, error) {
	if e.Condition != "" || e.Kind == EdgeHandoff {
		return EdgeHandoff, nil
	}
	if e.Kind == EdgeDirect {
		return EdgeDirect, nil
	}
	if len(e.From) > 1 && len(e.To) == 1 {
		return EdgeUnset, fmt.Errorf("%w: %d sources to %q without an explicit kind",
			ErrAmbiguousEdgeCardinality, len(e.From), e.To[0])
	}
	if len(e.To) == 1 {
		return EdgeHandoff, nil
	}
	return EdgeDirect, nil
}

// findDirectCycle runs a DFS over the direct subgraph; handoff edges may
// cycle because every hop consumes model-call budget.
func findDirectCycle(g *Graph) string {
	const (
		unvisited = 0
		active    = 1
		done      = 2
	)
	states := map[string]int{}

	var visit func(id string) string
	visit = func(id string) string {
		switch states[id] {
		case active:
			return id
		case done:
			return ""
		}
		states[id] = active
		for _, l := range g.directs[id] {
			if hit := visit(l.to); hit != "" {
				return hit
			}
		}
		states[id] = done
		return ""
	}

	for id := range g.nodes {
		if hit := visit(id); hit != "" {
			return hit
		}
	}
	return ""
}

// Entry returns the entry node id.
func (g *Graph) Entry() string { return g.entry }

// Node returns a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HandoffTargets returns the handoff destinations reachable from a source.
func (g *Graph) HandoffTargets(from string) []string {
	var ids []string
	for _, l := range g.handoffs[from] {
		ids = append(ids, l.to)
	}
	return ids
}

// DirectTargets returns the direct destinations reachable from a source.
func (g *Graph) DirectTargets(from string) []string {
	var ids []string
	for _, l := range g.directs[from] {
		ids = append(ids, l.to)
	}
	return ids
}
