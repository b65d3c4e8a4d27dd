// Package promptcache manages provider-specific prefix-cache markers on the
// canonical message list immediately before a model dispatch. At most two
// fresh markers are placed per pass, and stale markers of both profiles are
// always stripped first so markers never survive across turns or provider
// switches.
package promptcache

import "github.com/hupe1980/agentgraph/core"

// Profile selects one of the two structurally incompatible marker wire
// formats. The two cannot coexist in one payload; switching providers
// requires a dedicated Strip pass of the other profile.
type Profile int

const (
	// ProfileNone disables marker placement.
	ProfileNone Profile = iota
	// ProfileFieldMarker attaches the marker as a field on a text block:
	// cache_control: {"type": "ephemeral"}.
	ProfileFieldMarker
	// ProfileBlockMarker inserts the marker as a standalone sibling block:
	// {"cachePoint": {"type": "default"}}.
	ProfileBlockMarker
)

// maxFreshMarkers bounds the marker window per pass.
const maxFreshMarkers = 2

// Annotate transforms messages into a provider-ready list carrying at most
// two fresh markers of the given profile. The pass walks backward from the
// last message, strips any pre-existing markers of both profiles, then marks
// the first two eligible messages it encounters. Only messages actually
// changed are cloned; all others are returned as-is. Re-running the pass on
// its own output yields the same two marked messages.
func Annotate(messages []core.Message, profile Profile) []core.Message {
	if profile == ProfileNone || len(messages) < 2 {
		return messages
	}

	out := make([]core.Message, len(messages))
	copy(out, messages)

	marked := 0
	for i := len(out) - 1; i >= 0; i-- {
		msg, stripped := stripMarkers(out[i])

		changed := stripped
		if marked < maxFreshMarkers && eligible(msg, profile) {
			if m, ok := mark(msg, profile); ok {
				msg = m
				changed = true
				marked++
			}
		}

		if changed {
			out[i] = msg
		}
	}

	return out
}

// Strip removes every marker of the given profile, leaving the other profile
// untouched. Use it when switching providers before annotating with the new
// profile.
func Strip(messages []core.Message, profile Profile) []core.Message {
	out := make([]core.Message, len(messages))
	copy(out, messages)

	for i, msg := range out {
		switch profile {
		case ProfileFieldMarker:
			if m, changed := stripFieldMarkers(msg); changed {
				out[i] = m
			}
		case ProfileBlockMarker:
			if m, changed := stripBlockMarkers(msg); changed {
				out[i] = m
			}
		}
	}

	return out
}

// eligible applies the per-profile marking rules. Field markers attach only
// to user-authored messages; block markers attach to anything with content
// that is not a tool result.
func eligible(msg core.Message, profile Profile) bool {
	switch profile {
	case ProfileFieldMarker:
		return msg.Role == core.RoleUser && hasText(msg)
	case ProfileBlockMarker:
		return msg.Role != core.RoleTool && len(msg.Content) > 0
	default:
		return false
	}
}

func hasText(msg core.Message) bool {
	for _, b := range msg.Content {
		if tb, ok := b.(core.TextBlock); ok && tb.Text != "" {
			return true
		}
	}
	return false
}

// mark clones the message and places a fresh marker: on the last non-empty
// text block for the field profile, after it for the block profile (appended
// at the end when the message has no text block).
func mark(msg core.Message, profile Profile) (core.Message, bool) {
	clone := msg.Clone()

	last := -1
	for i, b := range clone.Content {
		if tb, ok := b.(core.TextBlock); ok && tb.Text != "" {
			last = i
		}
	}

	switch profile {
	case ProfileFieldMarker:
		if last < 0 {
			return msg, false
		}
		tb := clone.Content[last].(core.TextBlock)
		tb.CacheControl = &core.CacheControl{Type: core.MarkerEphemeral}
		clone.Content[last] = tb
		return clone, true

	case ProfileBlockMarker:
		marker := core.CacheMarkerBlock{Format: core.MarkerCachePoint}
		if last < 0 {
			clone.Content = append(clone.Content, marker)
			return clone, true
		}
		blocks := make([]core.ContentBlock, 0, len(clone.Content)+1)
		blocks = append(blocks, clone.Content[:last+1]...)
		blocks = append(blocks, marker)
		blocks = append(blocks, clone.Content[last+1:]...)
		clone.Content = blocks
		return clone, true
	}

	return msg, false
}

// stripMarkers removes markers of both profiles from one message, cloning
// only when something was actually removed.
func stripMarkers(msg core.Message) (core.Message, bool) {
	out, fieldChanged := stripFieldMarkers(msg)
	out, blockChanged := stripBlockMarkers(out)
	return out, fieldChanged || blockChanged
}

func stripFieldMarkers(msg core.Message) (core.Message, bool) {
	dirty := false
	for _, b := range msg.Content {
		if tb, ok := b.(core.TextBlock); ok && tb.CacheControl != nil {
			dirty = true
			break
		}
	}
	if !dirty {
		return msg, false
	}

	clone := msg.Clone()
	for i, b := range clone.Content {
		if tb, ok := b.(core.TextBlock); ok && tb.CacheControl != nil {
			tb.CacheControl = nil
			clone.Content[i] = tb
		}
	}
	return clone, true
}

func stripBlockMarkers(msg core.Message) (core.Message, bool) {
	dirty := false
	for _, b := range msg.Content {
		if core.IsCacheMarker(b) {
			dirty = true
			break
		}
	}
	if !dirty {
		return msg, false
	}

	clone := msg
	clone.Content = core.LogicalBlocks(msg.Content)
	return clone, true
}
