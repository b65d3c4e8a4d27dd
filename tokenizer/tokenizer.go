// Package tokenizer provides token counting for messages backed by tiktoken
// encodings. Encodings are expensive to load, so a Counter initializes lazily
// on first use and memoizes the loaded encoding until Reset. Counters are
// explicitly owned resources: construct one and pass it to call sites instead
// of reaching for ambient global state.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/agentgraph/core"
)

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Counter counts tokens for messages using a memoized tiktoken encoding.
// It is safe for concurrent use.
type Counter struct {
	encoding string

	mu      sync.Mutex
	enc     *tiktoken.Tiktoken
	initErr error
	loaded  bool
}

// NewCounter creates a counter for the given model name. Unknown models fall
// back to a prefix match and finally to the default encoding. No encoding
// data is loaded until Initialize or the first Count.
func NewCounter(model string) *Counter {
	return &Counter{encoding: encodingFor(model)}
}

func encodingFor(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	// Longest prefix wins: "gpt-4o-2024-08-06" must resolve through
	// "gpt-4o", not "gpt-4".
	prefixes := make([]string, 0, len(modelEncodings))
	for prefix := range modelEncodings {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return modelEncodings[prefix]
		}
	}
	return defaultEncoding
}

// Initialize eagerly loads the encoding. It is idempotent; a failed load is
// memoized until Reset.
func (c *Counter) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked()
}

func (c *Counter) initLocked() error {
	if c.loaded {
		return c.initErr
	}
	c.loaded = true
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		c.initErr = fmt.Errorf("load tiktoken encoding %s: %w", c.encoding, err)
		return c.initErr
	}
	c.enc = enc
	return nil
}

// Reset discards the memoized encoding (and any memoized load failure); the
// next Count reloads it.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc = nil
	c.initErr = nil
	c.loaded = false
}

// Count returns the token count for one message, including a small per
// message framing overhead. Cache markers are excluded; they never reach the
// provider tokenizer as content.
func (c *Counter) Count(msg core.Message) (int, error) {
	c.mu.Lock()
	if err := c.initLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	enc := c.enc
	c.mu.Unlock()

	// <|start|>role\n ... <|end|> framing
	total := 4
	total += len(enc.Encode(string(msg.Role), nil, nil))

	for _, b := range core.LogicalBlocks(msg.Content) {
		switch block := b.(type) {
		case core.TextBlock:
			total += len(enc.Encode(block.Text, nil, nil))
		case core.ReasoningBlock:
			total += len(enc.Encode(block.Text, nil, nil))
		case core.ToolCallBlock:
			total += len(enc.Encode(block.Name, nil, nil))
			total += len(enc.Encode(block.Args, nil, nil))
		}
	}

	return total, nil
}

// CountAll sums Count over a message slice plus a conversation-end overhead.
func (c *Counter) CountAll(msgs []core.Message) (int, error) {
	total := 3
	for _, m := range msgs {
		n, err := c.Count(m)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
