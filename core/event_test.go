package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKind_WireNames(t *testing.T) {
	cases := map[EventKind]string{
		EventRunStep:          "on_run_step",
		EventRunStepDelta:     "on_run_step_delta",
		EventRunStepCompleted: "on_run_step_completed",
		EventMessageDelta:     "on_message_delta",
		EventReasoningDelta:   "on_reasoning_delta",
		EventToolStart:        "tool_start",
		EventToolEnd:          "tool_end",
		EventModelStream:      "chat_model_stream",
		EventModelEnd:         "chat_model_end",
	}
	for kind, name := range cases {
		assert.Equal(t, name, kind.String())
	}
}

func TestNewStepEvent(t *testing.T) {
	step := NewRunStep("worker")
	ev := NewStepEvent(step)

	assert.Equal(t, EventRunStep, ev.Kind)
	assert.Equal(t, step.ID, ev.StepID)
	assert.Equal(t, "worker", ev.NodeID)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNewToolArgsDeltaEvent(t *testing.T) {
	ev := NewToolArgsDeltaEvent("step", "node", 2, "c1", "lookup", `{"q"`)

	assert.Equal(t, EventRunStepDelta, ev.Kind)
	assert.Equal(t, 2, ev.ContentIndex)
	assert.Equal(t, "c1", ev.ToolCallID)
	assert.Equal(t, "lookup", ev.ToolName)
	assert.Equal(t, `{"q"`, ev.Delta)
}

func TestNewRunStep_ULIDsAreOrdered(t *testing.T) {
	a := NewRunStep("n")
	b := NewRunStep("n")

	assert.NotEqual(t, a.ID, b.ID)
	// ULIDs sort lexicographically by creation time.
	assert.LessOrEqual(t, a.ID, b.ID)
}
