package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
)

func msg(id, text string) core.Message {
	m := core.NewTextMessage(core.RoleAssistant, text)
	m.ID = id
	return m
}

func TestMerge_EmptyIncoming(t *testing.T) {
	current := []core.Message{msg("a", "hello")}

	result, err := Merge(current, nil)
	require.NoError(t, err)
	assert.Equal(t, current, result)
}

func TestMerge_AppendsDisjointIDs(t *testing.T) {
	current := []core.Message{msg("a", "one"), msg("b", "two")}
	incoming := []core.Message{msg("c", "three"), msg("d", "four")}

	result, err := Merge(current, incoming)
	require.NoError(t, err)
	require.Len(t, result, 4)
	assert.Equal(t, "a", result[0].ID)
	assert.Equal(t, "b", result[1].ID)
	assert.Equal(t, "c", result[2].ID)
	assert.Equal(t, "d", result[3].ID)
}

func TestMerge_ReplacesInPlace(t *testing.T) {
	current := []core.Message{msg("a", "one"), msg("b", "two"), msg("c", "three")}
	incoming := []core.Message{msg("b", "updated")}

	result, err := Merge(current, incoming)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "updated", result[1].Text())
	assert.Equal(t, "b", result[1].ID)
	assert.Equal(t, "one", result[0].Text())
	assert.Equal(t, "three", result[2].Text())
}

func TestMerge_AssignsMissingIDs(t *testing.T) {
	incoming := []core.Message{core.NewTextMessage(core.RoleUser, "no id yet")}
	incoming[0].ID = ""

	result, err := Merge(nil, incoming)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.NotEmpty(t, result[0].ID)
}

func TestMerge_TombstoneDeletes(t *testing.T) {
	current := []core.Message{msg("a", "one"), msg("b", "two"), msg("c", "three")}
	incoming := []core.Message{core.NewTombstone("b")}

	result, err := Merge(current, incoming)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "a", result[0].ID)
	assert.Equal(t, "c", result[1].ID)
}

func TestMerge_TombstoneThenAppendReindexes(t *testing.T) {
	current := []core.Message{msg("a", "one"), msg("b", "two"), msg("c", "three")}
	incoming := []core.Message{
		core.NewTombstone("a"),
		msg("c", "updated"),
		msg("d", "four"),
	}

	result, err := Merge(current, incoming)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "b", result[0].ID)
	assert.Equal(t, "updated", result[1].Text())
	assert.Equal(t, "d", result[2].ID)
}

func TestMerge_UnknownRemovalTargetFails(t *testing.T) {
	current := []core.Message{msg("a", "one")}
	incoming := []core.Message{core.NewTombstone("ghost")}

	_, err := Merge(current, incoming)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRemovalTarget)
}

func TestMerge_TombstoneWithoutIDFails(t *testing.T) {
	tomb := core.Message{Removal: true}

	_, err := Merge(nil, []core.Message{tomb})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRemovalTarget)
}

func TestMerge_RemoveAllDiscardsHistory(t *testing.T) {
	current := []core.Message{msg("a", "one"), msg("b", "two")}
	incoming := []core.Message{
		msg("c", "dropped too"),
		core.NewRemoveAll(),
		msg("d", "survivor"),
	}

	result, err := Merge(current, incoming)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "d", result[0].ID)
	assert.Equal(t, "survivor", result[0].Text())
}

func TestMerge_RemoveAllAloneEmptiesList(t *testing.T) {
	current := []core.Message{msg("a", "one")}

	result, err := Merge(current, []core.Message{core.NewRemoveAll()})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestMerge_DoesNotMutateCurrent(t *testing.T) {
	current := []core.Message{msg("a", "one")}
	incoming := []core.Message{msg("a", "updated"), msg("b", "two")}

	_, err := Merge(current, incoming)
	require.NoError(t, err)
	assert.Equal(t, "one", current[0].Text())
	assert.Len(t, current, 1)
}
