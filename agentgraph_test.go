package agentgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/internal/testutil"
	"github.com/hupe1980/agentgraph/stream"
)

func TestAgentGraph_InvokeSync(t *testing.T) {
	gb := testutil.NewGraphBuilder("assistant")
	gb.Node("assistant").ScriptText("Here you go.")
	g, err := gb.Build()
	require.NoError(t, err)

	ag := New(g)
	turn, err := ag.InvokeSync(context.Background(), "conv", "help me out", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"assistant"}, turn.Path)
	assert.Equal(t, "Here you go.", turn.Messages[len(turn.Messages)-1].Text())
}

func TestAgentGraph_HandoffFlow(t *testing.T) {
	gb := testutil.NewGraphBuilder("triage")
	gb.Node("triage").Script(testutil.TransferCall("c1", "research", "dig into Q3"))
	gb.Node("research").ScriptText("Q3 grew 12%.")
	gb.Edge(graph.Edge{From: []string{"triage"}, To: []string{"research"}, Kind: graph.EdgeHandoff})
	g, err := gb.Build()
	require.NoError(t, err)

	agg := stream.NewAggregator()
	ag := New(g)

	turn, err := ag.InvokeSync(context.Background(), "conv", "how did Q3 go?", agg)
	require.NoError(t, err)

	assert.Equal(t, []string{"triage", "research"}, turn.Path)
	assert.Equal(t, "Q3 grew 12%.", turn.Messages[len(turn.Messages)-1].Text())

	// The aggregator reconstructed the streamed reply of the final node.
	var texts []string
	for _, p := range agg.Parts() {
		if tb, ok := p.Block.(core.TextBlock); ok {
			texts = append(texts, tb.Text)
		}
	}
	assert.Contains(t, texts, "Q3 grew 12%.")
}

func TestAgentGraph_InvokeAsync(t *testing.T) {
	gb := testutil.NewGraphBuilder("assistant")
	gb.Node("assistant").ScriptText("async reply")
	g, err := gb.Build()
	require.NoError(t, err)

	ag := New(g)
	turnID, events, errs, err := ag.Invoke(context.Background(), "conv", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, turnID)

	var count int
	for range events {
		count++
	}
	require.NoError(t, <-errs)
	assert.Positive(t, count)

	conv, err := ag.Store().Get("conv")
	require.NoError(t, err)
	assert.Equal(t, "async reply", conv.Snapshot()[1].Text())
}

func TestAgentGraph_StoreShared(t *testing.T) {
	gb := testutil.NewGraphBuilder("assistant")
	gb.Node("assistant").ScriptText("one").ScriptText("two")
	g, err := gb.Build()
	require.NoError(t, err)

	ag := New(g)
	_, err = ag.InvokeSync(context.Background(), "conv", "first", nil)
	require.NoError(t, err)
	turn, err := ag.InvokeSync(context.Background(), "conv", "second", nil)
	require.NoError(t, err)

	assert.Len(t, turn.Messages, 4)
}
