// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing messages, graphs and scripted models. These
// helpers are intentionally minimal and not intended for production usage.
package testutil

import (
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().Assistant().Text("hello").ToolCall("c1", "echo", `{}`).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	id     string
	role   core.Role
	blocks []core.ContentBlock
}

// NewMessageBuilder creates a builder with default role assistant.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{role: core.RoleAssistant}
}

// ID overrides the auto-generated message id. Use where determinism matters.
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// User sets the role to user.
func (b *MessageBuilder) User() *MessageBuilder { b.role = core.RoleUser; return b }

// Assistant sets the role to assistant.
func (b *MessageBuilder) Assistant() *MessageBuilder { b.role = core.RoleAssistant; return b }

// Tool sets the role to tool.
func (b *MessageBuilder) Tool() *MessageBuilder { b.role = core.RoleTool; return b }

// Text appends a text block.
func (b *MessageBuilder) Text(t string) *MessageBuilder {
	b.blocks = append(b.blocks, core.TextBlock{Text: t})
	return b
}

// ToolCall appends a tool call block.
func (b *MessageBuilder) ToolCall(id, name, args string) *MessageBuilder {
	b.blocks = append(b.blocks, core.ToolCallBlock{ID: id, Name: name, Args: args})
	return b
}

// Reasoning appends a reasoning block.
func (b *MessageBuilder) Reasoning(t string) *MessageBuilder {
	b.blocks = append(b.blocks, core.ReasoningBlock{Text: t})
	return b
}

// Build assembles the message.
func (b *MessageBuilder) Build() core.Message {
	msg := core.NewMessage(b.role, b.blocks...)
	if b.id != "" {
		msg.ID = b.id
	}
	return msg
}

// TransferCall is a convenience for scripting a model turn that invokes the
// transfer capability for target with the default payload parameter.
func TransferCall(callID, target, payload string) core.Message {
	return NewMessageBuilder().
		Assistant().
		ToolCall(callID, tool.TransferToolName(target), `{"`+tool.DefaultTransferParam+`":"`+payload+`"}`).
		Build()
}

// GraphBuilder wires nodes backed by scripted mock models, keeping graph
// declarations in tests compact.
type GraphBuilder struct {
	builder *graph.Builder
	models  map[string]*model.MockModel
}

// NewGraphBuilder creates a graph builder rooted at entry.
func NewGraphBuilder(entry string) *GraphBuilder {
	return &GraphBuilder{
		builder: graph.NewBuilder(entry),
		models:  map[string]*model.MockModel{},
	}
}

// Node adds a node backed by a fresh mock model and returns the model for
// scripting.
func (b *GraphBuilder) Node(id string) *model.MockModel {
	m := model.NewMockModel(id + "-model")
	b.models[id] = m
	b.builder.AddNode(&graph.Node{ID: id, Model: m})
	return m
}

// Edge adds an edge declaration.
func (b *GraphBuilder) Edge(e graph.Edge) *GraphBuilder {
	b.builder.AddEdge(e)
	return b
}

// Model returns the mock model backing a node.
func (b *GraphBuilder) Model(id string) *model.MockModel { return b.models[id] }

// Build validates the declarations.
func (b *GraphBuilder) Build() (*graph.Graph, error) { return b.builder.Build() }
