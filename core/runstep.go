package core

import "github.com/oklog/ulid/v2"

// StepStatus tracks a run step through its lifecycle.
type StepStatus string

const (
	// StepCreated is the initial status assigned on step creation.
	StepCreated StepStatus = "created"
	// StepInProgress marks a step that has begun emitting deltas.
	StepInProgress StepStatus = "in_progress"
	// StepCompleted marks a finalized step; its content will not change.
	StepCompleted StepStatus = "completed"
)

// RunStep is one unit of a node's turn carrying streamed content. Step ids
// are ULIDs so creation order is reconstructible from the ids alone.
type RunStep struct {
	ID     string     `json:"id"`
	NodeID string     `json:"node_id"`
	Status StepStatus `json:"status"`
}

// NewRunStep creates a step owned by the given node in the created state.
func NewRunStep(nodeID string) RunStep {
	return RunStep{ID: NewStepID(), NodeID: nodeID, Status: StepCreated}
}

// NewStepID generates a lexically ordered run step identifier.
func NewStepID() string { return ulid.Make().String() }
