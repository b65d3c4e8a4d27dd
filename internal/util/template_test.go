package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_FastPathWithoutMarkers(t *testing.T) {
	out, err := RenderTemplate("plain text", map[string]any{"ignored": true})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestRenderTemplate_SubstitutesFields(t *testing.T) {
	out, err := RenderTemplate("Hello {{.Name}}", map[string]any{"Name": "graph"})
	require.NoError(t, err)
	assert.Equal(t, "Hello graph", out)
}

func TestRenderTemplate_Funcs(t *testing.T) {
	out, err := RenderTemplate(`{{upper .Word}}`, map[string]any{"Word": "loud"})
	require.NoError(t, err)
	assert.Equal(t, "LOUD", out)
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("{{.Unclosed", nil)
	require.Error(t, err)
}
