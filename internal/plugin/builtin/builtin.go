// Package builtin contains the plugins shipped with limbo.
package builtin

import "limbo/internal/domain"

// Plugins returns every built-in plugin in activation order.
func Plugins() []domain.Plugin {
	return []domain.Plugin{
		NewEcho(),
		NewClock(),
		NewChatTitle(),
		NewUsage(),
	}
}

func ptr[T any](v T) *T { return &v }

// textOf returns the text of the first text-like node.
func textOf(nodes []domain.ContentNode) string {
	for _, n := range nodes {
		switch v := n.(type) {
		case domain.TextNode:
			return v.Text
		case domain.MarkdownNode:
			return v.Markdown
		}
	}
	return ""
}
