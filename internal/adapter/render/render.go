// Package render turns chat messages, panels and notifications into terminal
// output.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"

	"limbo/internal/domain"
)

// PluginRenderers resolves renderers registered by plugins.
type PluginRenderers interface {
	ChatNodeRenderer(nodeType string) (domain.ChatNodeRenderer, bool)
	MarkdownElement(element string) (domain.MarkdownElement, bool)
	MarkdownElements() []string
}

// Options configure a Renderer.
type Options struct {
	// Width wraps markdown; zero means 80.
	Width int
	// Style is a glamour standard style name ("dark", "light", "notty", ...).
	// Empty picks one from the terminal background.
	Style string
	// ASCII forces ASCII symbols.
	ASCII bool
}

// Renderer renders chat content for the terminal.
type Renderer struct {
	plugins PluginRenderers
	md      *glamour.TermRenderer
	symbols symbolSet
}

// New creates a Renderer. plugins may be nil.
func New(plugins PluginRenderers, opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	symbols := detectSymbols()
	if opts.ASCII {
		symbols = asciiSymbols
	}
	return &Renderer{plugins: plugins, md: md, symbols: symbols}, nil
}

// Message renders a role label followed by every node.
func (r *Renderer) Message(msg domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString(r.RoleLabel(msg.Role))
	b.WriteByte('\n')
	for _, n := range msg.Content {
		b.WriteString(r.Node(n))
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (r *Renderer) RoleLabel(role domain.ChatRole) string {
	switch role {
	case domain.RoleUser:
		return userLabel.Render("You")
	case domain.RoleAssistant:
		return botLabel.Render("limbo")
	default:
		return textMuted.Render(string(role))
	}
}

// Node renders one content node. Custom nodes use the renderer a plugin
// registered for their type, falling back to a placeholder.
func (r *Renderer) Node(n domain.ContentNode) string {
	switch v := n.(type) {
	case domain.TextNode:
		return v.Text
	case domain.MarkdownNode:
		return r.Markdown(v.Markdown)
	case domain.ImageNode:
		alt := v.Alt
		if alt == "" {
			alt = "image"
		}
		return textInfo.Render(fmt.Sprintf("[%s] %s", alt, v.URL))
	case domain.ToolCallNode:
		return r.ToolCall(v.Call)
	case domain.CustomNode:
		return r.custom(v)
	default:
		return textMuted.Render(fmt.Sprintf("[%s]", n.NodeType()))
	}
}

func (r *Renderer) custom(n domain.CustomNode) string {
	if r.plugins != nil {
		if cr, ok := r.plugins.ChatNodeRenderer(n.Type); ok {
			out, err := cr.Render(n)
			if err == nil {
				return r.Markdown(out)
			}
			return textError.Render(fmt.Sprintf("%s %s: %v", r.symbols.Error, n.Type, err))
		}
	}
	return textMuted.Render(fmt.Sprintf("[%s]", n.Type))
}

// ToolCall renders a one-line badge with the call's status.
func (r *Renderer) ToolCall(c domain.ToolCall) string {
	if c == nil {
		return textMuted.Render("[tool-call]")
	}
	base := c.Base()
	label := toolLabel.Render(r.symbols.ArrowR + " " + base.ToolID)
	switch v := c.(type) {
	case domain.PendingToolCall:
		return label + " " + textMuted.Render(r.symbols.Pending)
	case domain.SuccessToolCall:
		return label + " " + textSuccess.Render(r.symbols.Success) + " " + textMuted.Render(firstLine(v.Result))
	case domain.ErrorToolCall:
		return label + " " + textError.Render(r.symbols.Error+" "+v.Message())
	default:
		return label
	}
}

// Markdown expands plugin markdown elements and renders the result.
func (r *Renderer) Markdown(md string) string {
	md = r.expandElements(md)
	out, err := r.md.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Panel renders a chat panel inside a bordered box.
func (r *Renderer) Panel(p domain.ChatPanelPayload) string {
	title := p.Title
	if title == "" {
		title = p.PanelID
	}
	body := strings.TrimRight(r.Markdown(p.Content), "\n")
	return panelBorder.Render(botLabel.Render(title) + "\n" + body)
}

// Notification renders a single notification line styled by level.
func (r *Renderer) Notification(n domain.Notification) string {
	style := textInfo
	symbol := r.symbols.Info
	switch n.Level {
	case domain.NotificationWarning:
		style, symbol = textWarning, r.symbols.Warning
	case domain.NotificationError:
		style, symbol = textError, r.symbols.Error
	}
	line := style.Render(symbol + " " + n.Title)
	if n.Message != "" {
		line += " " + n.Message
	}
	return line
}

var attrPattern = regexp.MustCompile(`([A-Za-z_][-A-Za-z0-9_:.]*)\s*=\s*"([^"]*)"`)

// expandElements replaces <element attr="v">content</element> and
// <element attr="v"/> with the output of the element's renderer.
func (r *Renderer) expandElements(md string) string {
	if r.plugins == nil {
		return md
	}
	for _, name := range r.plugins.MarkdownElements() {
		el, ok := r.plugins.MarkdownElement(name)
		if !ok {
			continue
		}
		q := regexp.QuoteMeta(name)
		pattern := regexp.MustCompile(`(?s)<` + q + `((?:\s[^>]*?)?)(?:/>|>(.*?)</` + q + `>)`)
		md = pattern.ReplaceAllStringFunc(md, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			attrs := make(map[string]string)
			for _, a := range attrPattern.FindAllStringSubmatch(sub[1], -1) {
				attrs[a[1]] = a[2]
			}
			out, err := el.Render(attrs, sub[2])
			if err != nil {
				return match
			}
			return out
		})
	}
	return md
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
