package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
)

func TestAggregator_ReconstructsText(t *testing.T) {
	agg := NewAggregator()
	step := core.NewRunStep("writer")

	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, "Hel"))
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, "lo "))
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, "world"))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	parts := agg.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, step.ID, parts[0].StepID)
	assert.Equal(t, "writer", parts[0].NodeID)
	assert.Equal(t, core.TextBlock{Text: "Hello world"}, parts[0].Block)
	assert.NoError(t, parts[0].Err)
	assert.Zero(t, agg.Pending())
}

func TestAggregator_InterleavedStepsNeverMerge(t *testing.T) {
	agg := NewAggregator()
	a := core.NewRunStep("branch_a")
	b := core.NewRunStep("branch_b")

	agg.Feed(core.NewStepEvent(a))
	agg.Feed(core.NewStepEvent(b))

	// Byte-level interleaving across branches.
	agg.Feed(core.NewMessageDeltaEvent(a.ID, a.NodeID, 0, "al"))
	agg.Feed(core.NewMessageDeltaEvent(b.ID, b.NodeID, 0, "be"))
	agg.Feed(core.NewMessageDeltaEvent(a.ID, a.NodeID, 0, "pha"))
	agg.Feed(core.NewMessageDeltaEvent(b.ID, b.NodeID, 0, "ta"))

	// b completes first; parts appear in completion order.
	agg.Feed(core.NewStepCompletedEvent(b.ID, b.NodeID))
	agg.Feed(core.NewStepCompletedEvent(a.ID, a.NodeID))

	parts := agg.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, core.TextBlock{Text: "beta"}, parts[0].Block)
	assert.Equal(t, "branch_b", parts[0].NodeID)
	assert.Equal(t, core.TextBlock{Text: "alpha"}, parts[1].Block)
	assert.Equal(t, "branch_a", parts[1].NodeID)
}

func TestAggregator_ContentIndexOrderWithinStep(t *testing.T) {
	agg := NewAggregator()
	step := core.NewRunStep("thinker")

	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewToolArgsDeltaEvent(step.ID, step.NodeID, 1, "c1", "lookup", `{"q":`))
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, "Checking"))
	agg.Feed(core.NewToolArgsDeltaEvent(step.ID, step.NodeID, 1, "", "", `"go"}`))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	parts := agg.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, 0, parts[0].Index)
	assert.Equal(t, core.TextBlock{Text: "Checking"}, parts[0].Block)

	assert.Equal(t, 1, parts[1].Index)
	call, ok := parts[1].Block.(core.ToolCallBlock)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, "lookup", call.Name)
	assert.Equal(t, `{"q":"go"}`, call.Args)
	assert.NoError(t, parts[1].Err)
}

func TestAggregator_ToolOutputAttached(t *testing.T) {
	agg := NewAggregator()
	step := core.NewRunStep("worker")

	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewToolArgsDeltaEvent(step.ID, step.NodeID, 0, "c1", "lookup", `{}`))
	agg.Feed(core.NewToolEndEvent(step.ID, step.NodeID, "c1", "lookup", "result 42"))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	parts := agg.Parts()
	require.Len(t, parts, 1)
	call := parts[0].Block.(core.ToolCallBlock)
	assert.Equal(t, "result 42", call.Output)
}

func TestAggregator_MalformedToolArguments(t *testing.T) {
	agg := NewAggregator()
	step := core.NewRunStep("worker")

	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewToolArgsDeltaEvent(step.ID, step.NodeID, 0, "c1", "lookup", `{"q": "unterminated`))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	parts := agg.Parts()
	require.Len(t, parts, 1)
	require.Error(t, parts[0].Err)
	assert.ErrorIs(t, parts[0].Err, ErrMalformedToolArguments)

	// The raw fragments stay available on the block for diagnostics.
	call := parts[0].Block.(core.ToolCallBlock)
	assert.Equal(t, `{"q": "unterminated`, call.Args)
}

func TestAggregator_DropsUnknownStepDeltas(t *testing.T) {
	agg := NewAggregator()

	agg.Feed(core.NewMessageDeltaEvent("ghost", "nowhere", 0, "lost"))
	agg.Feed(core.NewStepCompletedEvent("ghost", "nowhere"))

	assert.Empty(t, agg.Parts())
	assert.Zero(t, agg.Pending())
}

func TestAggregator_LateDeltaAfterFinalizeDropped(t *testing.T) {
	agg := NewAggregator()
	step := core.NewRunStep("worker")

	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, "done"))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	// A straggler from a parallel branch after finalization.
	agg.Feed(core.NewMessageDeltaEvent(step.ID, step.NodeID, 0, " extra"))

	parts := agg.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, core.TextBlock{Text: "done"}, parts[0].Block)
}

func TestAggregator_OnPartCallback(t *testing.T) {
	agg := NewAggregator()
	var seen []Part
	agg.OnPart(func(p Part) { seen = append(seen, p) })

	step := core.NewRunStep("writer")
	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewReasoningDeltaEvent(step.ID, step.NodeID, 0, "thinking..."))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	require.Len(t, seen, 1)
	assert.Equal(t, core.ReasoningBlock{Text: "thinking..."}, seen[0].Block)
}

func TestAggregator_RegisteredHandlerReceivesKind(t *testing.T) {
	agg := NewAggregator()
	var ends int
	agg.Register(core.EventModelEnd, func(ev core.Event) { ends++ })

	step := core.NewRunStep("writer")
	agg.Feed(core.NewStepEvent(step))
	agg.Feed(core.NewModelEndEvent(step.ID, step.NodeID, core.NewTextMessage(core.RoleAssistant, "hi")))
	agg.Feed(core.NewStepCompletedEvent(step.ID, step.NodeID))

	assert.Equal(t, 1, ends)
}
