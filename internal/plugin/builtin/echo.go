package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"limbo/internal/domain"
)

// Echo registers the "echo" LLM. It repeats the last user message, asks the
// clock tool when the user mentions the time, and reports tool results.
type Echo struct {
	api domain.PluginAPI
}

func NewEcho() *Echo { return &Echo{} }

func (*Echo) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		ID:          "echo",
		Name:        "Echo",
		Version:     "1.0.0",
		Description: "An offline model that echoes the conversation.",
		Author:      "limbo",
	}
}

func (e *Echo) OnActivate(_ context.Context, api domain.PluginAPI) error {
	e.api = api
	if api.Settings != nil {
		err := api.Settings.Register(domain.TextSetting{
			SettingBase: domain.SettingBase{ID: "prefix", Name: "Reply prefix", Description: "Text put in front of every reply."},
			Default:     ptr(""),
		})
		if err != nil {
			return err
		}
	}
	return api.Models.RegisterLLM(&echoLLM{settings: api.Settings})
}

type echoLLM struct {
	settings domain.SettingsNamespace
}

func (*echoLLM) ID() string          { return "echo" }
func (*echoLLM) Name() string        { return "Echo" }
func (*echoLLM) Description() string { return "Repeats what you say." }

func (*echoLLM) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityToolCalling}
}

func (l *echoLLM) Chat(ctx context.Context, args domain.ChatArgs) (<-chan domain.LLMEvent, error) {
	events := l.reply(ctx, args)
	out := make(chan domain.LLMEvent)
	go func() {
		defer close(out)
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (l *echoLLM) reply(ctx context.Context, args domain.ChatArgs) []domain.LLMEvent {
	msgs := args.Prompt.Messages
	if len(msgs) == 0 {
		return text(l.prefix(ctx) + "(nothing to echo)")
	}
	switch m := msgs[len(msgs)-1].(type) {
	case domain.ToolPromptMessage:
		return text(l.prefix(ctx) + fmt.Sprintf("The %s tool says: %s", m.ToolID, m.Result))
	case domain.TextPromptMessage:
		if m.Role == domain.PromptUser && wantsTime(m.Content) && offers(args.Tools, "clock") {
			return []domain.LLMEvent{domain.ToolCallRequest{ToolID: "clock", Arguments: json.RawMessage(`{}`)}}
		}
		return text(l.prefix(ctx) + m.Content)
	}
	return text(l.prefix(ctx) + "(nothing to echo)")
}

func (l *echoLLM) prefix(ctx context.Context) string {
	if l.settings == nil {
		return ""
	}
	v, ok, err := l.settings.Get(ctx, "prefix")
	if err != nil || !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// text splits s into word deltas so the reply streams.
func text(s string) []domain.LLMEvent {
	var out []domain.LLMEvent
	for _, w := range strings.SplitAfter(s, " ") {
		if w != "" {
			out = append(out, domain.TextDelta{Text: w})
		}
	}
	return out
}

func wantsTime(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "time") || strings.Contains(s, "clock")
}

func offers(tools []domain.ToolDefinition, id string) bool {
	for _, t := range tools {
		if t.ID == id {
			return true
		}
	}
	return false
}
