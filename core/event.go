package core

import "time"

// EventKind enumerates the closed execution event taxonomy. Dispatch happens
// through typed switches; extension points accept the enum rather than open
// string keys.
type EventKind int

const (
	// EventRunStep announces a newly created run step.
	EventRunStep EventKind = iota
	// EventRunStepDelta carries a raw tool-call argument fragment for a step.
	EventRunStepDelta
	// EventRunStepCompleted finalizes a step; no further deltas follow.
	EventRunStepCompleted
	// EventMessageDelta carries a text fragment.
	EventMessageDelta
	// EventReasoningDelta carries a reasoning text fragment.
	EventReasoningDelta
	// EventToolStart marks the start of a tool execution.
	EventToolStart
	// EventToolEnd marks the end of a tool execution and carries its output.
	EventToolEnd
	// EventModelStream marks raw streamed model activity for a step.
	EventModelStream
	// EventModelEnd marks the end of a model call and carries the final message.
	EventModelEnd
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventRunStep:
		return "on_run_step"
	case EventRunStepDelta:
		return "on_run_step_delta"
	case EventRunStepCompleted:
		return "on_run_step_completed"
	case EventMessageDelta:
		return "on_message_delta"
	case EventReasoningDelta:
		return "on_reasoning_delta"
	case EventToolStart:
		return "tool_start"
	case EventToolEnd:
		return "tool_end"
	case EventModelStream:
		return "chat_model_stream"
	case EventModelEnd:
		return "chat_model_end"
	default:
		return "unknown"
	}
}

// Event is the unit of communication between executing nodes and consumers.
// After emission it should be treated as immutable. Events from concurrently
// executing branches interleave; StepID scopes every delta to its producer.
type Event struct {
	ID           string     `json:"id"`
	Kind         EventKind  `json:"kind"`
	StepID       string     `json:"step_id,omitempty"`
	NodeID       string     `json:"node_id,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	ContentIndex int        `json:"content_index,omitempty"`
	Delta        string     `json:"delta,omitempty"`     // text / reasoning / arg fragment
	ToolCallID   string     `json:"tool_call_id,omitempty"`
	ToolName     string     `json:"tool_name,omitempty"` // set on tool start and first arg fragment
	Output       any        `json:"output,omitempty"`    // tool end payload
	Message      *Message   `json:"message,omitempty"`   // final message on chat_model_end
	Timestamp    time.Time  `json:"timestamp"`
}

// NewEvent creates a bare event of the given kind scoped to a step and node.
func NewEvent(kind EventKind, stepID, nodeID string) Event {
	return Event{
		ID:        NewID(),
		Kind:      kind,
		StepID:    stepID,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
	}
}

// NewStepEvent announces a created run step.
func NewStepEvent(step RunStep) Event {
	return NewEvent(EventRunStep, step.ID, step.NodeID)
}

// NewMessageDeltaEvent carries a text fragment for (step, index).
func NewMessageDeltaEvent(stepID, nodeID string, index int, delta string) Event {
	ev := NewEvent(EventMessageDelta, stepID, nodeID)
	ev.ContentIndex = index
	ev.Delta = delta
	return ev
}

// NewReasoningDeltaEvent carries a reasoning fragment for (step, index).
func NewReasoningDeltaEvent(stepID, nodeID string, index int, delta string) Event {
	ev := NewEvent(EventReasoningDelta, stepID, nodeID)
	ev.ContentIndex = index
	ev.Delta = delta
	return ev
}

// NewToolArgsDeltaEvent carries a raw tool-argument fragment for (step, index).
// The tool call id and name ride along on the first fragment.
func NewToolArgsDeltaEvent(stepID, nodeID string, index int, callID, name, fragment string) Event {
	ev := NewEvent(EventRunStepDelta, stepID, nodeID)
	ev.ContentIndex = index
	ev.ToolCallID = callID
	ev.ToolName = name
	ev.Delta = fragment
	return ev
}

// NewStepCompletedEvent finalizes a run step.
func NewStepCompletedEvent(stepID, nodeID string) Event {
	return NewEvent(EventRunStepCompleted, stepID, nodeID)
}

// NewToolStartEvent marks the start of a tool execution within a step.
func NewToolStartEvent(stepID, nodeID, callID, name string) Event {
	ev := NewEvent(EventToolStart, stepID, nodeID)
	ev.ToolCallID = callID
	ev.ToolName = name
	return ev
}

// NewToolEndEvent marks tool completion and carries the output (or error text).
func NewToolEndEvent(stepID, nodeID, callID, name string, output any) Event {
	ev := NewEvent(EventToolEnd, stepID, nodeID)
	ev.ToolCallID = callID
	ev.ToolName = name
	ev.Output = output
	return ev
}

// NewModelEndEvent marks the end of a model call with its final message.
func NewModelEndEvent(stepID, nodeID string, msg Message) Event {
	ev := NewEvent(EventModelEnd, stepID, nodeID)
	ev.Message = &msg
	return ev
}
