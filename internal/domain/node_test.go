package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodes_JSONRoundTrip(t *testing.T) {
	call := NewPendingToolCall("clock", json.RawMessage(`{"tz":"UTC"}`)).Succeed("12:00")
	nodes := []ContentNode{
		TextNode{Text: "hello"},
		MarkdownNode{Markdown: "**bold**"},
		ImageNode{URL: "https://example.com/a.png", Alt: "a"},
		ToolCallNode{Call: call},
		CustomNode{Type: "weather-card", Data: json.RawMessage(`{"temp":21}`)},
	}

	b, err := MarshalNodes(nodes)
	require.NoError(t, err)

	got, err := UnmarshalNodes(b)
	require.NoError(t, err)
	require.Len(t, got, len(nodes))

	assert.Equal(t, nodes[0], got[0])
	assert.Equal(t, nodes[1], got[1])
	assert.Equal(t, nodes[2], got[2])

	tc, ok := got[3].(ToolCallNode)
	require.True(t, ok)
	settled, ok := tc.Call.(SuccessToolCall)
	require.True(t, ok)
	assert.Equal(t, "12:00", settled.Result)
	assert.Equal(t, call.ID, settled.ID)

	custom, ok := got[4].(CustomNode)
	require.True(t, ok)
	assert.Equal(t, "weather-card", custom.NodeType())
	assert.JSONEq(t, `{"temp":21}`, string(custom.Data))
}

func TestMarshalNodes_Rejects(t *testing.T) {
	_, err := MarshalNodes([]ContentNode{nil})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = MarshalNodes([]ContentNode{CustomNode{}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnmarshalNodes_MissingType(t *testing.T) {
	_, err := UnmarshalNodes([]byte(`[{"data":{}}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlainText(t *testing.T) {
	nodes := []ContentNode{
		TextNode{Text: "a"},
		ImageNode{URL: "x"},
		MarkdownNode{Markdown: "b"},
	}
	assert.Equal(t, "ab", PlainText(nodes))
}

func TestUnderstands_Default(t *testing.T) {
	assert.True(t, Understands(nil, TextNode{}))
	assert.True(t, Understands(nil, MarkdownNode{}))
	assert.False(t, Understands(nil, ImageNode{}))
	assert.False(t, Understands(nil, ToolCallNode{}))
}
