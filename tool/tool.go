// Package tool implements the function / tool calling subsystem that lets
// graph nodes invoke structured capabilities with schema validated arguments
// and consistent error handling. It also provides the synthesized transfer
// capability the router exposes on handoff edges.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
)

// Tool defines the interface for extending node capabilities with external
// functions. Implementations should provide clear names and descriptions,
// define a JSON schema for parameters, and be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with parsed arguments and the invocation Context.
	Call(tc *Context, args map[string]any) (any, error)
}

// Transfer is the routing directive produced by invoking a transfer
// capability: control moves exclusively to Target for the rest of the turn.
type Transfer struct {
	Target  string // destination node id
	Payload string // instructions payload handed to the destination
}

// Context is the scoped execution environment handed to every tool call.
// The conversation snapshot is passed explicitly; tools never read shared
// state through ambient lookups.
type Context struct {
	ctx      context.Context
	NodeID   string
	CallID   string
	Messages []core.Message // read-only snapshot at invocation time

	mu       sync.Mutex
	transfer *Transfer
}

// NewContext builds a tool context scoped to one call.
func NewContext(ctx context.Context, nodeID, callID string, snapshot []core.Message) *Context {
	return &Context{ctx: ctx, NodeID: nodeID, CallID: callID, Messages: snapshot}
}

// Context returns the ambient cancellation context.
func (tc *Context) Context() context.Context {
	if tc.ctx == nil {
		return context.Background()
	}
	return tc.ctx
}

// RequestTransfer records a routing directive naming the destination node.
// The router consumes it after the call returns; invoking it more than once
// keeps the last directive.
func (tc *Context) RequestTransfer(target, payload string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.transfer = &Transfer{Target: target, Payload: payload}
}

// PendingTransfer returns the recorded directive, if any.
func (tc *Context) PendingTransfer() *Transfer {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.transfer
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// ValidationError re-exports the internal validation error type.
type ValidationError = util.ValidationError
