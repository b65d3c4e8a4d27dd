package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of conversational roles. Values are constructed
// explicitly at ingress boundaries; there is no capability probing.
type Role string

const (
	// RoleSystem marks instruction content authored by the orchestrator.
	RoleSystem Role = "system"
	// RoleUser marks end-user authored content.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated content.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool result content.
	RoleTool Role = "tool"
)

// ParseRole validates and converts an external role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// RemoveAllID is the sentinel id of a tombstone that discards the entire
// current message list when merged.
const RemoveAllID = "__remove_all__"

// Message is the canonical conversational unit. IDs are unique within a
// conversation; a message without an id receives one on first merge. A
// message with Removal set is a tombstone: merged, it deletes the entry with
// the same id (or everything before it when ID == RemoveAllID).
type Message struct {
	ID      string         `json:"id,omitempty"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
	Removal bool           `json:"removal,omitempty"`
}

// NewMessage builds a message without an id; the reducer assigns one on
// first merge.
func NewMessage(role Role, blocks ...ContentBlock) Message {
	return Message{Role: role, Content: blocks}
}

// NewTextMessage is a convenience wrapper for a single-text-block message.
func NewTextMessage(role Role, text string) Message {
	return NewMessage(role, TextBlock{Text: text})
}

// NewTombstone builds a removal entry targeting the message with the given id.
func NewTombstone(id string) Message {
	return Message{ID: id, Removal: true}
}

// NewRemoveAll builds the sentinel tombstone discarding all prior history.
func NewRemoveAll() Message {
	return Message{ID: RemoveAllID, Removal: true}
}

// NewID generates a unique identifier for messages and events.
func NewID() string { return uuid.NewString() }

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if tb, ok := b.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool call blocks preserving original order.
func (m Message) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, b := range m.Content {
		if tc, ok := b.(ToolCallBlock); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Clone returns a copy with an independent content slice. Block values are
// copied by value; TextBlock cache-control pointers are duplicated so the
// clone can be re-annotated without aliasing.
func (m Message) Clone() Message {
	c := m
	c.Content = make([]ContentBlock, len(m.Content))
	for i, b := range m.Content {
		if tb, ok := b.(TextBlock); ok && tb.CacheControl != nil {
			cc := *tb.CacheControl
			tb.CacheControl = &cc
			c.Content[i] = tb
			continue
		}
		c.Content[i] = b
	}
	return c
}
