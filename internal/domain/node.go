package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Built-in content node types.
const (
	NodeText     = "text"
	NodeMarkdown = "markdown"
	NodeImage    = "image"
	NodeToolCall = "tool_call"
)

// ContentNode is one ordered piece of a chat message. The variant is determined
// by NodeType and each variant carries only its own fields.
type ContentNode interface {
	NodeType() string
	contentNode()
}

// TextNode is plain text.
type TextNode struct {
	Text string `json:"text"`
}

// MarkdownNode is markdown source rendered by the frontend.
type MarkdownNode struct {
	Markdown string `json:"markdown"`
}

// ImageNode references an image by URL.
type ImageNode struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ToolCallNode embeds a tool call in the assistant message. The orchestrator
// replaces the node when the call settles.
type ToolCallNode struct {
	Call ToolCall `json:"-"`
}

// CustomNode is a plugin-defined node; Type matches a registered chat node renderer.
type CustomNode struct {
	Type string          `json:"-"`
	Data json.RawMessage `json:"-"`
}

func (TextNode) NodeType() string     { return NodeText }
func (MarkdownNode) NodeType() string { return NodeMarkdown }
func (ImageNode) NodeType() string    { return NodeImage }
func (ToolCallNode) NodeType() string { return NodeToolCall }
func (n CustomNode) NodeType() string { return n.Type }

func (TextNode) contentNode()     {}
func (MarkdownNode) contentNode() {}
func (ImageNode) contentNode()    {}
func (ToolCallNode) contentNode() {}
func (CustomNode) contentNode()   {}

type nodeEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalNodes encodes nodes as a JSON array of {"type", "data"} envelopes.
func MarshalNodes(nodes []ContentNode) ([]byte, error) {
	envs := make([]nodeEnvelope, 0, len(nodes))
	for i, n := range nodes {
		var (
			data []byte
			err  error
		)
		switch v := n.(type) {
		case ToolCallNode:
			data, err = MarshalToolCall(v.Call)
		case CustomNode:
			if v.Type == "" {
				return nil, fmt.Errorf("node %d: %w: custom node without type", i, ErrInvalidInput)
			}
			data = v.Data
			if len(data) == 0 {
				data = []byte("null")
			}
		case nil:
			return nil, fmt.Errorf("node %d: %w: nil node", i, ErrInvalidInput)
		default:
			data, err = json.Marshal(v)
		}
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		envs = append(envs, nodeEnvelope{Type: n.NodeType(), Data: data})
	}
	return json.Marshal(envs)
}

// UnmarshalNodes decodes the output of MarshalNodes. Unknown types become CustomNode.
func UnmarshalNodes(b []byte) ([]ContentNode, error) {
	var envs []nodeEnvelope
	if err := json.Unmarshal(b, &envs); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	nodes := make([]ContentNode, 0, len(envs))
	for i, env := range envs {
		n, err := decodeNode(env)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, env.Type, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(env nodeEnvelope) (ContentNode, error) {
	switch env.Type {
	case NodeText:
		var n TextNode
		err := json.Unmarshal(env.Data, &n)
		return n, err
	case NodeMarkdown:
		var n MarkdownNode
		err := json.Unmarshal(env.Data, &n)
		return n, err
	case NodeImage:
		var n ImageNode
		err := json.Unmarshal(env.Data, &n)
		return n, err
	case NodeToolCall:
		call, err := UnmarshalToolCall(env.Data)
		if err != nil {
			return nil, err
		}
		return ToolCallNode{Call: call}, nil
	case "":
		return nil, fmt.Errorf("%w: missing node type", ErrInvalidInput)
	default:
		return CustomNode{Type: env.Type, Data: env.Data}, nil
	}
}

// PlainText concatenates the text and markdown nodes of a message.
func PlainText(nodes []ContentNode) string {
	var b strings.Builder
	for _, n := range nodes {
		switch v := n.(type) {
		case TextNode:
			b.WriteString(v.Text)
		case MarkdownNode:
			b.WriteString(v.Markdown)
		}
	}
	return b.String()
}
