package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/stream"
)

func soloGraph(t *testing.T, m model.Model) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("solo").
		AddNode(&graph.Node{ID: "solo", Model: m, Instructions: "Answer directly."}).
		Build()
	require.NoError(t, err)
	return g
}

func TestRunner_RunSyncSingleNode(t *testing.T) {
	m := model.NewMockModel("mock").ScriptText("The answer is 42.")
	r := New(soloGraph(t, m))

	turn, err := r.RunSync(context.Background(), "conv", "what is the answer?", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"solo"}, turn.Path)
	require.Len(t, turn.Messages, 2)
	assert.Equal(t, core.RoleUser, turn.Messages[0].Role)
	assert.Equal(t, "The answer is 42.", turn.Messages[1].Text())
}

func TestRunner_RunSyncHandoff(t *testing.T) {
	triageModel := model.NewMockModel("triage-model").Script(core.NewMessage(
		core.RoleAssistant,
		core.ToolCallBlock{ID: "c1", Name: "transfer_to_billing", Args: `{"instructions":"open invoice case"}`},
	))
	billingModel := model.NewMockModel("billing-model").ScriptText("Refund issued.")

	g, err := graph.NewBuilder("triage").
		AddNode(&graph.Node{ID: "triage", Model: triageModel}).
		AddNode(&graph.Node{ID: "billing", Model: billingModel}).
		AddEdge(graph.Edge{
			From:      []string{"triage"},
			To:        []string{"billing"},
			Condition: "billing questions",
		}).
		Build()
	require.NoError(t, err)

	r := New(g)
	turn, err := r.RunSync(context.Background(), "conv", "I was double charged", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"triage", "billing"}, turn.Path)
	assert.Equal(t, "Refund issued.", turn.Messages[len(turn.Messages)-1].Text())
}

func TestRunner_RunSyncFeedsAggregator(t *testing.T) {
	m := model.NewMockModel("mock").ScriptText("streamed reply")
	r := New(soloGraph(t, m))
	agg := stream.NewAggregator()

	_, err := r.RunSync(context.Background(), "conv", "hi", agg)
	require.NoError(t, err)

	parts := agg.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, core.TextBlock{Text: "streamed reply"}, parts[0].Block)
	assert.Equal(t, "solo", parts[0].NodeID)
}

func TestRunner_RunAsyncDeliversEvents(t *testing.T) {
	m := model.NewMockModel("mock").ScriptText("ok")
	r := New(soloGraph(t, m))

	_, events, errs, err := r.Run(context.Background(), "conv", "hi")
	require.NoError(t, err)

	var kinds []core.EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.NoError(t, <-errs)

	assert.Contains(t, kinds, core.EventRunStep)
	assert.Contains(t, kinds, core.EventRunStepCompleted)
	assert.Contains(t, kinds, core.EventModelEnd)
}

func TestRunner_ConversationPersistsAcrossTurns(t *testing.T) {
	m := model.NewMockModel("mock").ScriptText("first").ScriptText("second")
	r := New(soloGraph(t, m))

	turn1, err := r.RunSync(context.Background(), "conv", "one", nil)
	require.NoError(t, err)
	turn2, err := r.RunSync(context.Background(), "conv", "two", nil)
	require.NoError(t, err)

	assert.Len(t, turn1.Messages, 2)
	assert.Len(t, turn2.Messages, 4)
	assert.Equal(t, "second", turn2.Messages[3].Text())
}

func TestRunner_CancelUnknownTurn(t *testing.T) {
	m := model.NewMockModel("mock")
	r := New(soloGraph(t, m))

	err := r.Cancel("nope")
	require.Error(t, err)
}
