// Package stream reconstructs structured content from the interleaved partial
// events emitted by concurrently executing graph branches. One accumulator
// exists per (run step id, content index) pair so content from two different
// steps can never merge, even when their deltas interleave byte by byte.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

// ErrMalformedToolArguments is attached to a finalized tool-call part whose
// buffered argument fragments fail structural parsing. It is non-fatal to the
// run.
var ErrMalformedToolArguments = errors.New("malformed tool arguments")

// Part is a finalized unit of reconstructed content. Parts become visible in
// completion order; a part is never visible before its first delta arrived.
type Part struct {
	StepID string
	NodeID string
	Index  int
	Block  core.ContentBlock
	Err    error // set to a wrapped ErrMalformedToolArguments on parse failure
}

type accKind int

const (
	accText accKind = iota
	accReasoning
	accToolArgs
)

// accumulator buffers deltas for one (step, index) pair until finalization.
type accumulator struct {
	kind     accKind
	buf      []byte
	callID   string
	toolName string
	output   any
}

type accKey struct {
	stepID string
	index  int
}

// Handler receives events of a registered kind after built-in processing.
type Handler func(core.Event)

// Aggregator consumes the ordered, append-only event sequence of a run and
// produces a live, append-only sequence of finalized parts. It is safe for
// concurrent use; deltas apply in arrival order.
type Aggregator struct {
	mu       sync.Mutex
	live     map[string]core.RunStep // steps announced and not yet finalized
	accs     map[accKey]*accumulator
	parts    []Part
	onPart   []func(Part)
	handlers map[core.EventKind][]Handler
	logger   logging.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for suppressed diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		live:     map[string]core.RunStep{},
		accs:     map[accKey]*accumulator{},
		handlers: map[core.EventKind][]Handler{},
		logger:   logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnPart registers a callback invoked (under no lock) for every finalized part.
func (a *Aggregator) OnPart(fn func(Part)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onPart = append(a.onPart, fn)
}

// Register adds a typed handler for an event kind, called after built-in
// processing of every matching event.
func (a *Aggregator) Register(kind core.EventKind, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[kind] = append(a.handlers[kind], h)
}

// Feed applies a single event. Events referencing a run step the aggregator
// no longer (or never) tracks are dropped with a debug diagnostic; under
// parallel execution a branch may finalize before a late event arrives, which
// is an accepted race, not an error.
func (a *Aggregator) Feed(ev core.Event) {
	var done []Part

	a.mu.Lock()
	switch ev.Kind {
	case core.EventRunStep:
		a.live[ev.StepID] = core.RunStep{ID: ev.StepID, NodeID: ev.NodeID, Status: core.StepCreated}

	case core.EventMessageDelta:
		a.applyDelta(ev, accText)

	case core.EventReasoningDelta:
		a.applyDelta(ev, accReasoning)

	case core.EventRunStepDelta:
		if acc := a.applyDelta(ev, accToolArgs); acc != nil {
			if ev.ToolCallID != "" {
				acc.callID = ev.ToolCallID
			}
			if ev.ToolName != "" {
				acc.toolName = ev.ToolName
			}
		}

	case core.EventToolEnd:
		a.attachOutput(ev)

	case core.EventRunStepCompleted:
		done = a.finalizeStep(ev.StepID)

	case core.EventToolStart, core.EventModelStream, core.EventModelEnd:
		// Informational; nothing to accumulate.
	}
	callbacks := a.onPart
	handlers := a.handlers[ev.Kind]
	a.mu.Unlock()

	for _, p := range done {
		for _, fn := range callbacks {
			fn(p)
		}
	}
	for _, h := range handlers {
		h(ev)
	}
}

// applyDelta appends a fragment to the (step, index) accumulator, creating it
// lazily on first delta. Returns nil when the step is out of scope.
func (a *Aggregator) applyDelta(ev core.Event, kind accKind) *accumulator {
	step, ok := a.live[ev.StepID]
	if !ok {
		a.logger.Debug("stream.delta.dropped", "step_id", ev.StepID, "kind", ev.Kind.String())
		return nil
	}
	if step.Status == core.StepCreated {
		step.Status = core.StepInProgress
		a.live[ev.StepID] = step
	}

	key := accKey{stepID: ev.StepID, index: ev.ContentIndex}
	acc, ok := a.accs[key]
	if !ok {
		acc = &accumulator{kind: kind}
		a.accs[key] = acc
	}
	acc.buf = append(acc.buf, ev.Delta...)
	return acc
}

// attachOutput records a tool result against the accumulator carrying the
// matching call id.
func (a *Aggregator) attachOutput(ev core.Event) {
	if _, ok := a.live[ev.StepID]; !ok {
		a.logger.Debug("stream.tool_end.dropped", "step_id", ev.StepID, "tool", ev.ToolName)
		return
	}
	for key, acc := range a.accs {
		if key.stepID == ev.StepID && acc.kind == accToolArgs && acc.callID == ev.ToolCallID {
			acc.output = ev.Output
			return
		}
	}
}

// finalizeStep converts the step's accumulators into parts (in content index
// order within the step) and garbage-collects its scope. Callers finalize in
// completion order, which defines part visibility order across branches.
func (a *Aggregator) finalizeStep(stepID string) []Part {
	step, ok := a.live[stepID]
	if !ok {
		a.logger.Debug("stream.completed.dropped", "step_id", stepID)
		return nil
	}
	delete(a.live, stepID)

	var keys []accKey
	for key := range a.accs {
		if key.stepID == stepID {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })

	var done []Part
	for _, key := range keys {
		acc := a.accs[key]
		delete(a.accs, key)
		done = append(done, a.finalize(step, key.index, acc))
	}
	a.parts = append(a.parts, done...)
	return done
}

func (a *Aggregator) finalize(step core.RunStep, index int, acc *accumulator) Part {
	p := Part{StepID: step.ID, NodeID: step.NodeID, Index: index}
	switch acc.kind {
	case accText:
		p.Block = core.TextBlock{Text: string(acc.buf)}
	case accReasoning:
		p.Block = core.ReasoningBlock{Text: string(acc.buf)}
	case accToolArgs:
		block := core.ToolCallBlock{
			ID:     acc.callID,
			Name:   acc.toolName,
			Args:   string(acc.buf),
			Output: acc.output,
		}
		if len(acc.buf) > 0 && !json.Valid(acc.buf) {
			p.Err = fmt.Errorf("%w: tool %s call %s", ErrMalformedToolArguments, acc.toolName, acc.callID)
		}
		p.Block = block
	}
	return p
}

// Parts returns a snapshot of the finalized parts in completion order. The
// in-progress list may be observed at any time; the only guarantee is that a
// part never appears before its first delta was fed.
func (a *Aggregator) Parts() []Part {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Part, len(a.parts))
	copy(out, a.parts)
	return out
}

// Pending reports how many run steps are live (announced, not yet finalized).
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
