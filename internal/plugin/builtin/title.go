package builtin

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"limbo/internal/domain"
)

const defaultChatName = "New chat"

// ChatTitle renames untitled chats after their first generation, using the
// first user message.
type ChatTitle struct {
	api domain.PluginAPI
}

func NewChatTitle() *ChatTitle { return &ChatTitle{} }

func (*ChatTitle) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		ID:          "chat-title",
		Name:        "Chat titles",
		Version:     "1.0.0",
		Description: "Names new chats after their first message.",
		Author:      "limbo",
		Permissions: []domain.Permission{domain.PermissionChats},
	}
}

func (t *ChatTitle) OnActivate(_ context.Context, api domain.PluginAPI) error {
	t.api = api
	if api.Settings == nil {
		return nil
	}
	if err := api.Settings.Register(domain.BooleanSetting{
		SettingBase: domain.SettingBase{ID: "enabled", Name: "Rename new chats"},
		Default:     ptr(true),
	}); err != nil {
		return err
	}
	return api.Settings.Register(domain.NumberSetting{
		SettingBase: domain.SettingBase{ID: "max_length", Name: "Title length", Description: "Maximum characters in a generated title."},
		Default:     ptr(40.0),
		Min:         ptr(10.0),
		Max:         ptr(120.0),
	})
}

func (t *ChatTitle) OnAfterChatGeneration(ctx context.Context, gen *domain.ChatGeneration) error {
	if gen.State == domain.GenerationAborted || !t.enabled(ctx) {
		return nil
	}
	key := titledKey(gen.ChatID)
	if t.api.Storage != nil {
		if _, done, err := t.api.Storage.Get(ctx, key); err != nil || done {
			return err
		}
	}

	chat, err := t.api.Chats.Get(ctx, gen.ChatID)
	if err != nil || chat == nil {
		return err
	}
	if chat.Name == defaultChatName {
		msgs, err := t.api.Chats.GetMessages(ctx, domain.GetMessagesOptions{
			ChatID: gen.ChatID,
			Limit:  1,
			Role:   domain.RoleUser,
			Sort:   domain.SortOldest,
		})
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		title := makeTitle(textOf(msgs[0].Content), t.maxLength(ctx))
		if title == "" {
			return nil
		}
		if err := t.api.Chats.Rename(ctx, gen.ChatID, title); err != nil {
			return err
		}
		t.api.Logger.Debug("chat titled", "chat_id", gen.ChatID, "title", title)
	}
	if t.api.Storage == nil {
		return nil
	}
	return t.api.Storage.Set(ctx, key, json.RawMessage("true"))
}

func (t *ChatTitle) OnChatDeleted(ctx context.Context, chatID string) error {
	if t.api.Storage == nil {
		return nil
	}
	return t.api.Storage.Remove(ctx, titledKey(chatID))
}

func (t *ChatTitle) OnChatsDeleted(ctx context.Context, chatIDs []string) error {
	for _, id := range chatIDs {
		if err := t.OnChatDeleted(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *ChatTitle) enabled(ctx context.Context) bool {
	if t.api.Settings == nil {
		return true
	}
	v, ok, err := t.api.Settings.Get(ctx, "enabled")
	if err != nil || !ok {
		return true
	}
	b, isBool := v.(bool)
	return !isBool || b
}

func (t *ChatTitle) maxLength(ctx context.Context) int {
	if t.api.Settings != nil {
		if v, ok, err := t.api.Settings.Get(ctx, "max_length"); err == nil && ok {
			if f, isNum := v.(float64); isNum && f > 0 {
				return int(f)
			}
		}
	}
	return 40
}

func titledKey(chatID string) string { return "titled/" + chatID }

// makeTitle collapses whitespace and cuts s to limit runes on a word boundary
// when possible.
func makeTitle(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := string([]rune(s)[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
