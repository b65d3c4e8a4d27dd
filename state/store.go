package state

import (
	"sync"
	"time"

	"github.com/hupe1980/agentgraph/core"
)

// Conversation holds the canonical ordered message list for one conversation.
// It is safe for concurrent access. The list is never mutated in place: every
// merge installs a freshly built slice and bumps the version, so snapshots
// taken by readers stay valid.
type Conversation struct {
	ID      string
	Created time.Time
	Updated time.Time

	mu       sync.RWMutex
	messages []core.Message
	version  uint64
}

// NewConversation creates an empty conversation with the given id.
func NewConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{ID: id, Created: now, Updated: now}
}

// Snapshot returns a defensive copy of the current message list.
func (c *Conversation) Snapshot() []core.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]core.Message, len(c.messages))
	copy(msgs, c.messages)
	return msgs
}

// Version returns the merge counter; it increases with every applied merge.
func (c *Conversation) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the current number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// ApplyMerge reconciles incoming into the canonical list via Merge and
// installs the result. It returns a copy of the new list. Merges apply in
// the order callers reach the lock, which under parallel branches is
// branch-completion order.
func (c *Conversation) ApplyMerge(incoming []core.Message) ([]core.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged, err := Merge(c.messages, incoming)
	if err != nil {
		return nil, err
	}

	c.messages = merged
	c.version++
	c.Updated = time.Now()

	out := make([]core.Message, len(merged))
	copy(out, merged)
	return out, nil
}

// Store persists conversations and their evolving message lists.
type Store interface {
	Create(id string) (*Conversation, error)
	Get(id string) (*Conversation, error)
}

// InMemoryStore is a volatile Store keeping conversations in a process-local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation)}
}

// Get returns an existing conversation or creates one lazily.
func (s *InMemoryStore) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		return c, nil
	}
	return s.createLocked(id), nil
}

// Create forces creation of a conversation with the given id, replacing any
// existing one.
func (s *InMemoryStore) Create(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id), nil
}

func (s *InMemoryStore) createLocked(id string) *Conversation {
	c := NewConversation(id)
	s.conversations[id] = c
	return c
}
