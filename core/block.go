package core

// ContentBlock represents a polymorphic segment of message content. Concrete
// block types implement the unexported isBlock marker enabling a closed set.
type ContentBlock interface{ isBlock() }

// MarkerFormat identifies a provider-specific cache marker wire format.
type MarkerFormat string

const (
	// MarkerEphemeral is the field-style marker attached to a text block:
	// cache_control: {"type": "ephemeral"}.
	MarkerEphemeral MarkerFormat = "ephemeral"
	// MarkerCachePoint is the standalone sibling block marker:
	// {"cachePoint": {"type": "default"}}.
	MarkerCachePoint MarkerFormat = "default"
)

// CacheControl is a field-style cache marker carried on a TextBlock.
type CacheControl struct {
	Type MarkerFormat `json:"type"` // always "ephemeral"
}

// TextBlock is a plain text content segment. CacheControl, when set, requests
// provider prefix caching up to and including this block.
type TextBlock struct {
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

func (TextBlock) isBlock() {}

// ToolCallBlock records a tool invocation request and, once the tool has run,
// its output.
type ToolCallBlock struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Args   string `json:"args,omitempty"` // serialized argument payload (JSON)
	Output any    `json:"output,omitempty"`
}

func (ToolCallBlock) isBlock() {}

// ReasoningBlock carries model reasoning text with an optional provider
// signature for replay integrity.
type ReasoningBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

func (ReasoningBlock) isBlock() {}

// MediaBlock references non-text content by kind (image, audio, ...) and an
// opaque reference (URI or artifact id).
type MediaBlock struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

func (MediaBlock) isBlock() {}

// CacheMarkerBlock is a transient, provider-specific standalone marker block
// inserted by the prompt cache annotator. It never participates in logical
// content comparisons and is stripped before re-annotation.
type CacheMarkerBlock struct {
	Format MarkerFormat `json:"format"`
}

func (CacheMarkerBlock) isBlock() {}

// IsCacheMarker reports whether the block is a transient cache marker.
func IsCacheMarker(b ContentBlock) bool {
	_, ok := b.(CacheMarkerBlock)
	return ok
}

// LogicalBlocks returns the blocks with transient cache markers removed. The
// returned slice shares backing storage only if no marker was present.
func LogicalBlocks(blocks []ContentBlock) []ContentBlock {
	marked := false
	for _, b := range blocks {
		if IsCacheMarker(b) {
			marked = true
			break
		}
	}
	if !marked {
		return blocks
	}
	out := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if !IsCacheMarker(b) {
			out = append(out, b)
		}
	}
	return out
}
