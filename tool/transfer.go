package tool

import (
	"fmt"
)

// DefaultTransferParam is the payload parameter name a transfer capability
// accepts unless the edge overrides it.
const DefaultTransferParam = "instructions"

// transferTool is the callable capability synthesized for a handoff edge.
// Invoking it records an exclusive routing directive naming the destination.
type transferTool struct {
	target      string
	param       string
	description string
}

// NewTransferTool constructs the transfer capability for one handoff
// destination. param falls back to DefaultTransferParam when empty;
// description falls back to a generic transfer hint.
func NewTransferTool(target, param, description string) Tool {
	if param == "" {
		param = DefaultTransferParam
	}
	if description == "" {
		description = fmt.Sprintf("Transfer control to the %q node when it is better suited to continue.", target)
	}
	return &transferTool{target: target, param: param, description: description}
}

// TransferToolName returns the synthesized tool name for a destination node.
func TransferToolName(target string) string { return "transfer_to_" + target }

func (t *transferTool) Name() string { return TransferToolName(t.target) }

func (t *transferTool) Description() string { return t.description }

func (t *transferTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			t.param: map[string]any{
				"type":        "string",
				"description": "Context handed to the destination node",
			},
		},
		"required": []string{t.param},
	}
}

func (t *transferTool) Call(tc *Context, args map[string]any) (any, error) {
	raw, ok := args[t.param]
	if !ok {
		return nil, fmt.Errorf("missing required field %q", t.param)
	}
	payload, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %q must be a string", t.param)
	}
	tc.RequestTransfer(t.target, payload)
	return map[string]any{"transferred": true, "target": t.target}, nil
}
