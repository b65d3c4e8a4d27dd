package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Tool = (*FunctionTool)(nil)
	_ Tool = (*transferTool)(nil)
)

func weatherTool() *FunctionTool {
	return NewFunctionTool(
		"get_weather", "Returns the weather for a city.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			return map[string]any{"city": args["city"], "temp": 21}, nil
		},
	)
}

func testContext() *Context {
	return NewContext(context.Background(), "worker", "call-1", nil)
}

func TestFunctionTool_Call(t *testing.T) {
	out, err := weatherTool().Call(testContext(), map[string]any{"city": "Berlin"})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "Berlin", result["city"])
}

func TestFunctionTool_MissingRequiredArgument(t *testing.T) {
	_, err := weatherTool().Call(testContext(), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_WrongArgumentType(t *testing.T) {
	_, err := weatherTool().Call(testContext(), map[string]any{"city": 42})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	failing := NewFunctionTool("boom", "Always fails.",
		map[string]any{"type": "object"},
		func(tc *Context, args map[string]any) (any, error) {
			return nil, errors.New("backing service down")
		},
	)

	_, err := failing.Call(testContext(), nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestTransferTool_RecordsDirective(t *testing.T) {
	tr := NewTransferTool("billing", "", "")
	assert.Equal(t, "transfer_to_billing", tr.Name())

	tc := testContext()
	out, err := tr.Call(tc, map[string]any{"instructions": "refund case 7"})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, true, result["transferred"])
	assert.Equal(t, "billing", result["target"])

	transfer := tc.PendingTransfer()
	require.NotNil(t, transfer)
	assert.Equal(t, "billing", transfer.Target)
	assert.Equal(t, "refund case 7", transfer.Payload)
}

func TestTransferTool_CustomParamName(t *testing.T) {
	tr := NewTransferTool("research", "focus", "")

	tc := testContext()
	_, err := tr.Call(tc, map[string]any{"focus": "Q3 numbers"})
	require.NoError(t, err)
	assert.Equal(t, "Q3 numbers", tc.PendingTransfer().Payload)

	_, err = tr.Call(testContext(), map[string]any{"instructions": "wrong key"})
	require.Error(t, err)
}

func TestContext_RepeatedTransferKeepsLastDirective(t *testing.T) {
	tc := testContext()
	tc.RequestTransfer("first", "a")
	tc.RequestTransfer("second", "b")

	transfer := tc.PendingTransfer()
	require.NotNil(t, transfer)
	assert.Equal(t, "second", transfer.Target)
}

func TestContext_SnapshotAccessible(t *testing.T) {
	snap := []core.Message{core.NewTextMessage(core.RoleUser, "history")}
	tc := NewContext(context.Background(), "worker", "c1", snap)

	assert.Equal(t, "worker", tc.NodeID)
	assert.Equal(t, "c1", tc.CallID)
	require.Len(t, tc.Messages, 1)
	assert.Equal(t, "history", tc.Messages[0].Text())
}
