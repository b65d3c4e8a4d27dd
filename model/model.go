// Package model defines the provider-neutral contract between graph nodes and
// language-model backends. Adapters translate the canonical message list into
// provider payloads and stream normalized chunks back; the orchestration
// layers never see provider types.
package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the router for one
// model call. Messages arrive pre-annotated by the prompt cache pass.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// Chunk is one streamed unit of a response. Exactly one of the delta fields
// is populated; ToolCallID and ToolName ride on the first fragment of a tool
// call.
type Chunk struct {
	Index        int    `json:"index"` // content block index
	Text         string `json:"text,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	ArgsFragment string `json:"args_fragment,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) unit emitted by a model. Partial responses
// carry a Chunk; the final response carries the complete assistant Message.
type Response struct {
	Partial      bool          `json:"partial"`
	Chunk        *Chunk        `json:"chunk,omitempty"`
	Message      *core.Message `json:"message,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *TokenUsage   `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools     bool   `json:"supports_tools"`
	SupportsStreaming bool   `json:"supports_streaming"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted turns are consumed in order; once exhausted it echoes the last
// user message.
type MockModel struct {
	info    Info
	scripts []core.Message
	next    int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true, SupportsStreaming: true},
	}
}

// Script appends a canned assistant message returned by the next Generate call.
func (m *MockModel) Script(msg core.Message) *MockModel {
	m.scripts = append(m.scripts, msg)
	return m
}

// ScriptText is a convenience wrapper scripting a plain text turn.
func (m *MockModel) ScriptText(text string) *MockModel {
	return m.Script(core.NewTextMessage(core.RoleAssistant, text))
}

// Generate implements Model; emits optional per-rune streaming chunks then
// the final message.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	var final core.Message
	if m.next < len(m.scripts) {
		final = m.scripts[m.next]
		m.next++
	} else {
		last := "empty"
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == core.RoleUser {
				last = req.Messages[i].Text()
				break
			}
		}
		final = core.NewTextMessage(core.RoleAssistant, fmt.Sprintf("Mock response to: %s", last))
	}

	go func() {
		defer close(respCh)
		defer close(errCh)

		if req.Stream {
			for _, r := range final.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Chunk: &Chunk{Index: 0, Text: string(r)}}:
				}
			}
			for _, tc := range final.ToolCalls() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Chunk: &Chunk{
					Index:        1,
					ToolCallID:   tc.ID,
					ToolName:     tc.Name,
					ArgsFragment: tc.Args,
				}}:
				}
			}
		}

		finish := "stop"
		if len(final.ToolCalls()) > 0 {
			finish = "tool_calls"
		}
		respCh <- Response{Partial: false, Message: &final, FinishReason: finish}
	}()

	return respCh, errCh
}

// Info implements the Model interface.
func (m *MockModel) Info() Info { return m.info }
