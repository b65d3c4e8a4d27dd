package state

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// ErrUnknownRemovalTarget is returned when a tombstone references a message id
// absent from the current list. The merge call fails as a whole; no partial
// result is produced.
var ErrUnknownRemovalTarget = errors.New("unknown removal target")

// Merge reconciles incoming messages into current, returning a new list.
// It is pure and deterministic:
//
//   - incoming messages without an id are assigned a fresh unique id
//   - a remove-all sentinel at position i discards current entirely; the
//     result is incoming[i+1:] merged into an empty list
//   - otherwise incoming is walked in order: a tombstone whose id exists
//     deletes that entry, a normal message with an existing id replaces it in
//     place, a new id appends, and a tombstone with an unknown id fails with
//     ErrUnknownRemovalTarget
//
// Unaffected entries keep their relative order, and merging an empty incoming
// list returns current unchanged.
func Merge(current, incoming []core.Message) ([]core.Message, error) {
	if len(incoming) == 0 {
		return current, nil
	}

	// Remove-all sentinel truncates everything before it, including earlier
	// incoming entries already merged.
	for i, m := range incoming {
		if m.Removal && m.ID == core.RemoveAllID {
			return Merge(nil, incoming[i+1:])
		}
	}

	result := make([]core.Message, len(current))
	copy(result, current)

	index := make(map[string]int, len(result))
	for i, m := range result {
		index[m.ID] = i
	}

	for _, m := range incoming {
		if m.ID == "" {
			if m.Removal {
				return nil, fmt.Errorf("%w: tombstone without id", ErrUnknownRemovalTarget)
			}
			m.ID = core.NewID()
		}

		pos, known := index[m.ID]

		switch {
		case known && m.Removal:
			result = append(result[:pos], result[pos+1:]...)
			delete(index, m.ID)
			for id, p := range index {
				if p > pos {
					index[id] = p - 1
				}
			}
		case known:
			result[pos] = m
		case m.Removal:
			return nil, fmt.Errorf("%w: id %q", ErrUnknownRemovalTarget, m.ID)
		default:
			index[m.ID] = len(result)
			result = append(result, m)
		}
	}

	return result, nil
}
