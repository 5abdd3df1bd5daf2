package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limbo/internal/domain"
)

type stubRenderers struct {
	nodes    map[string]domain.ChatNodeRenderer
	elements map[string]domain.MarkdownElement
}

func (s *stubRenderers) ChatNodeRenderer(t string) (domain.ChatNodeRenderer, bool) {
	r, ok := s.nodes[t]
	return r, ok
}

func (s *stubRenderers) MarkdownElement(name string) (domain.MarkdownElement, bool) {
	el, ok := s.elements[name]
	return el, ok
}

func (s *stubRenderers) MarkdownElements() []string {
	var names []string
	for n := range s.elements {
		names = append(names, n)
	}
	return names
}

func newTestRenderer(t *testing.T, plugins PluginRenderers) *Renderer {
	t.Helper()
	r, err := New(plugins, Options{Width: 60, Style: "notty", ASCII: true})
	require.NoError(t, err)
	return r
}

func TestMessageLabelsAndNodes(t *testing.T) {
	r := newTestRenderer(t, nil)
	out := r.Message(domain.ChatMessage{
		Role: domain.RoleUser,
		Content: []domain.ContentNode{
			domain.TextNode{Text: "hello"},
			domain.ImageNode{URL: "https://example.com/cat.png"},
		},
	})
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "[image] https://example.com/cat.png")
}

func TestMarkdownRendered(t *testing.T) {
	r := newTestRenderer(t, nil)
	out := r.Node(domain.MarkdownNode{Markdown: "# Title\n\nsome **bold** text"})
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")
}

func TestToolCallBadges(t *testing.T) {
	r := newTestRenderer(t, nil)
	pending := domain.NewPendingToolCall("clock", nil)

	tests := []struct {
		name string
		call domain.ToolCall
		want []string
	}{
		{"pending", pending, []string{"-> clock", "[...]"}},
		{"success", pending.Succeed("12:00\nmore"), []string{"[OK]", "12:00 …"}},
		{"error", pending.FailWith(errors.New("boom")), []string{"[ERR] boom"}},
		{"nil", nil, []string{"[tool-call]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Node(domain.ToolCallNode{Call: tt.call})
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestCustomNode(t *testing.T) {
	plugins := &stubRenderers{nodes: map[string]domain.ChatNodeRenderer{
		"weather": {Type: "weather", Render: func(n domain.CustomNode) (string, error) {
			var d struct{ City string }
			if err := json.Unmarshal(n.Data, &d); err != nil {
				return "", err
			}
			return "Sunny in " + d.City, nil
		}},
		"broken": {Type: "broken", Render: func(domain.CustomNode) (string, error) {
			return "", errors.New("bad data")
		}},
	}}
	r := newTestRenderer(t, plugins)

	assert.Contains(t, r.Node(domain.CustomNode{Type: "weather", Data: json.RawMessage(`{"City":"Oslo"}`)}), "Sunny in Oslo")
	assert.Contains(t, r.Node(domain.CustomNode{Type: "broken"}), "broken: bad data")
	assert.Contains(t, r.Node(domain.CustomNode{Type: "unknown"}), "[unknown]")
}

func TestMarkdownElementsExpanded(t *testing.T) {
	var gotAttrs map[string]string
	var gotContent string
	plugins := &stubRenderers{elements: map[string]domain.MarkdownElement{
		"badge": {Element: "badge", Render: func(attrs map[string]string, content string) (string, error) {
			gotAttrs, gotContent = attrs, content
			return "BADGE(" + attrs["color"] + ":" + content + ")", nil
		}},
		"spacer": {Element: "spacer", Render: func(map[string]string, string) (string, error) {
			return "SPACER", nil
		}},
	}}
	r := newTestRenderer(t, plugins)

	out := r.expandElements(`before <badge color="red" size="2">new</badge> mid <spacer/> after`)
	assert.Equal(t, "before BADGE(red:new) mid SPACER after", out)
	assert.Equal(t, map[string]string{"color": "red", "size": "2"}, gotAttrs)
	assert.Equal(t, "new", gotContent)
}

func TestMarkdownElementErrorKeepsSource(t *testing.T) {
	plugins := &stubRenderers{elements: map[string]domain.MarkdownElement{
		"x": {Element: "x", Render: func(map[string]string, string) (string, error) {
			return "", errors.New("nope")
		}},
	}}
	r := newTestRenderer(t, plugins)
	assert.Equal(t, "<x>y</x>", r.expandElements("<x>y</x>"))
}

func TestPanelAndNotification(t *testing.T) {
	r := newTestRenderer(t, nil)

	panel := r.Panel(domain.ChatPanelPayload{PanelID: "stats", Content: "42 chats"})
	assert.Contains(t, panel, "stats")
	assert.Contains(t, panel, "42 chats")
	assert.GreaterOrEqual(t, strings.Count(panel, "\n"), 2)

	n := r.Notification(domain.Notification{Level: domain.NotificationWarning, Title: "Low quota", Message: "3 left"})
	assert.Contains(t, n, "[!] Low quota")
	assert.Contains(t, n, "3 left")

	n = r.Notification(domain.Notification{Level: domain.NotificationError, Title: "Failed"})
	assert.Contains(t, n, "[ERR] Failed")
}

func TestDetectSymbols(t *testing.T) {
	t.Setenv("LIMBO_ASCII_SYMBOLS", "1")
	assert.Equal(t, asciiSymbols, detectSymbols())

	t.Setenv("LIMBO_ASCII_SYMBOLS", "")
	t.Setenv("LC_ALL", "C")
	assert.Equal(t, asciiSymbols, detectSymbols())

	t.Setenv("LC_ALL", "en_US.UTF-8")
	assert.Equal(t, unicodeSymbols, detectSymbols())
}
