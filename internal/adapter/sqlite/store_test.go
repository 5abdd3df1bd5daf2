package sqlite

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limbo/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "limbo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedMessages(t *testing.T, chats *ChatStore, chatID string, roles ...domain.ChatRole) []string {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for i, role := range roles {
		msg := domain.ChatMessage{
			ChatID:    chatID,
			Role:      role,
			Content:   []domain.ContentNode{domain.TextNode{Text: string(role) + " " + string(rune('a'+i))}},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		msg.ID = domain.NewID()
		require.NoError(t, chats.AppendMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}
	return ids
}

func messageIDs(msgs []domain.ChatMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// --- Chats ---

func TestChatStore_CRUD(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()

	chat := &domain.Chat{Name: "first"}
	require.NoError(t, chats.Create(ctx, chat))
	require.NotEmpty(t, chat.ID)
	require.False(t, chat.CreatedAt.IsZero())

	got, err := chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Name)
	assert.True(t, chat.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, chats.Rename(ctx, chat.ID, "renamed"))
	got, _ = chats.Get(ctx, chat.ID)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, chats.Delete(ctx, chat.ID))
	got, err = chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatStore_GetUnknownIsNil(t *testing.T) {
	got, err := newTestStore(t).Chats().Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatStore_CreateDuplicate(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	assert.ErrorIs(t, chats.Create(ctx, &domain.Chat{ID: "c1"}), domain.ErrDuplicate)
}

func TestChatStore_RenameUnknown(t *testing.T) {
	err := newTestStore(t).Chats().Rename(context.Background(), "missing", "x")
	assert.Equal(t, domain.CodeChatNotFound, domain.ErrorCodeOf(err))
}

func TestChatStore_DeleteUnknownIsNoop(t *testing.T) {
	assert.NoError(t, newTestStore(t).Chats().Delete(context.Background(), "missing"))
}

func TestChatStore_ListNewestFirst(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "old", CreatedAt: base}))
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "new", CreatedAt: base.Add(time.Hour)}))

	list, err := chats.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestChatStore_AppendMessageRequiresChat(t *testing.T) {
	chats := newTestStore(t).Chats()
	err := chats.AppendMessage(context.Background(), domain.ChatMessage{ChatID: "missing", Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatStore_AppendMessageRejectsRole(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	err := chats.AppendMessage(ctx, domain.ChatMessage{ChatID: "c1", Role: "system"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChatStore_GetMessagesOldest(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c2"}))
	ids := seedMessages(t, chats, "c1", domain.RoleUser, domain.RoleAssistant, domain.RoleUser)
	seedMessages(t, chats, "c2", domain.RoleUser)

	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1", Limit: 2, Sort: domain.SortOldest})
	require.NoError(t, err)
	assert.Equal(t, ids[:2], messageIDs(msgs))
}

func TestChatStore_GetMessagesDefaults(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))

	roles := make([]domain.ChatRole, 30)
	for i := range roles {
		roles[i] = domain.RoleUser
	}
	ids := seedMessages(t, chats, "c1", roles...)

	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1"})
	require.NoError(t, err)
	require.Len(t, msgs, domain.DefaultMessageLimit)
	assert.Equal(t, ids[29], msgs[0].ID, "newest first by default")
}

func TestChatStore_GetMessagesRoleFilter(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	ids := seedMessages(t, chats, "c1", domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant)

	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1", Role: domain.RoleAssistant})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[1]}, messageIDs(msgs))
}

func TestChatStore_GetMessagesSameTimestampKeepsInsertOrder(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	var ids []string
	for range 3 {
		msg := domain.ChatMessage{ID: domain.NewID(), ChatID: "c1", Role: domain.RoleUser, CreatedAt: base}
		require.NoError(t, chats.AppendMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1", Sort: domain.SortOldest})
	require.NoError(t, err)
	assert.Equal(t, ids, messageIDs(msgs))
}

func TestChatStore_GetMessagesInvalidOptions(t *testing.T) {
	chats := newTestStore(t).Chats()
	_, err := chats.GetMessages(context.Background(), domain.GetMessagesOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = chats.GetMessages(context.Background(), domain.GetMessagesOptions{ChatID: "c1", Sort: "random"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChatStore_MessageContentRoundTrip(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))

	call := domain.NewPendingToolCall("clock", json.RawMessage(`{"zone":"UTC"}`)).Succeed("noon")
	content := []domain.ContentNode{
		domain.TextNode{Text: "checking"},
		domain.ToolCallNode{Call: call},
		domain.CustomNode{Type: "weather", Data: json.RawMessage(`{"temp":21}`)},
	}
	require.NoError(t, chats.AppendMessage(ctx, domain.ChatMessage{ChatID: "c1", Role: domain.RoleAssistant, Content: content}))

	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 3)
	assert.Equal(t, domain.TextNode{Text: "checking"}, msgs[0].Content[0])
	tc, ok := msgs[0].Content[1].(domain.ToolCallNode)
	require.True(t, ok)
	assert.Equal(t, call.ID, tc.Call.Base().ID)
	assert.Equal(t, "weather", msgs[0].Content[2].NodeType())
}

func TestChatStore_DeleteRemovesMessages(t *testing.T) {
	chats := newTestStore(t).Chats()
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, &domain.Chat{ID: "c1"}))
	seedMessages(t, chats, "c1", domain.RoleUser)

	require.NoError(t, chats.Delete(ctx, "c1"))
	msgs, err := chats.GetMessages(ctx, domain.GetMessagesOptions{ChatID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// --- Storage ---

func TestStorage_ScopedByPlugin(t *testing.T) {
	provider := newTestStore(t).Storage()
	ctx := context.Background()
	a, b := provider.ForPlugin("a"), provider.ForPlugin("b")

	require.NoError(t, a.Set(ctx, "k", json.RawMessage(`{"n":1}`)))
	require.NoError(t, a.Set(ctx, "k", json.RawMessage(`{"n":2}`)))

	got, ok, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(got))

	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_RemoveAndClear(t *testing.T) {
	provider := newTestStore(t).Storage()
	ctx := context.Background()
	a, b := provider.ForPlugin("a"), provider.ForPlugin("b")
	require.NoError(t, a.Set(ctx, "x", json.RawMessage(`1`)))
	require.NoError(t, a.Set(ctx, "y", json.RawMessage(`2`)))
	require.NoError(t, b.Set(ctx, "x", json.RawMessage(`3`)))

	require.NoError(t, a.Remove(ctx, "x"))
	require.NoError(t, a.Remove(ctx, "never-set"))
	_, ok, _ := a.Get(ctx, "x")
	assert.False(t, ok)

	require.NoError(t, a.Clear(ctx))
	_, ok, _ = a.Get(ctx, "y")
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, "x")
	assert.True(t, ok, "clear is scoped to one plugin")
}

func TestStorage_RejectsInvalid(t *testing.T) {
	ns := newTestStore(t).Storage().ForPlugin("a")
	ctx := context.Background()
	assert.ErrorIs(t, ns.Set(ctx, "", json.RawMessage(`1`)), domain.ErrInvalidInput)
	assert.ErrorIs(t, ns.Set(ctx, "k", json.RawMessage(`{oops`)), domain.ErrInvalidInput)
}

// --- Setting values and tokens ---

func TestSettingValueStore(t *testing.T) {
	values := newTestStore(t).SettingValues()
	ctx := context.Background()

	_, ok, err := values.Load(ctx, "p", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, values.Save(ctx, "p", "s", json.RawMessage(`true`)))
	require.NoError(t, values.Save(ctx, "p", "s", json.RawMessage(`false`)))
	got, ok, err := values.Load(ctx, "p", "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false", string(got))

	require.NoError(t, values.Delete(ctx, "p", "s"))
	_, ok, _ = values.Load(ctx, "p", "s")
	assert.False(t, ok)
}

func TestTokenStore(t *testing.T) {
	tokens := newTestStore(t).Tokens()
	ctx := context.Background()

	require.NoError(t, tokens.Put(ctx, "issuer", "enc:abc"))
	got, ok, err := tokens.Get(ctx, "issuer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "enc:abc", got)

	require.NoError(t, tokens.Delete(ctx, "issuer"))
	_, ok, _ = tokens.Get(ctx, "issuer")
	assert.False(t, ok)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "limbo.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Chats().Create(context.Background(), &domain.Chat{ID: "c1"}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Chats().Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// --- Plugin databases ---

func newTestDatabases(t *testing.T) (*PluginDatabases, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "plugins")
	dbs := NewPluginDatabases(dir, slog.Default())
	t.Cleanup(func() { dbs.Close() })
	return dbs, dir
}

func TestPluginDatabase_ExecAndQuery(t *testing.T) {
	dbs, dir := newTestDatabases(t)
	db := dbs.ForPlugin("notes")
	ctx := context.Background()

	res, err := db.Query(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	res, err = db.Query(ctx, "INSERT INTO notes (body) VALUES (?), (?)", "one", "two")
	require.NoError(t, err)
	require.NotNil(t, res.LastInsertID)
	require.NotNil(t, res.RowsAffected)
	assert.EqualValues(t, 2, *res.LastInsertID)
	assert.EqualValues(t, 2, *res.RowsAffected)

	res, err = db.Query(ctx, "-- newest\nSELECT id, body FROM notes ORDER BY id DESC")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "two", res.Rows[0]["body"])
	assert.EqualValues(t, 2, res.Rows[0]["id"])
	assert.Nil(t, res.LastInsertID)

	_, err = os.Stat(filepath.Join(dir, "notes.db"))
	assert.NoError(t, err)
}

func TestPluginDatabase_Returning(t *testing.T) {
	dbs, _ := newTestDatabases(t)
	db := dbs.ForPlugin("p")
	ctx := context.Background()
	_, err := db.Query(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	res, err := db.Query(ctx, "INSERT INTO t (v) VALUES ('x') RETURNING id")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 1, res.Rows[0]["id"])
}

func TestPluginDatabase_Isolated(t *testing.T) {
	dbs, _ := newTestDatabases(t)
	ctx := context.Background()
	_, err := dbs.ForPlugin("a").Query(ctx, "CREATE TABLE only_a (x)")
	require.NoError(t, err)

	_, err = dbs.ForPlugin("b").Query(ctx, "SELECT * FROM only_a")
	assert.Error(t, err)
}

func TestPluginDatabase_RejectsPathIDs(t *testing.T) {
	dbs, _ := newTestDatabases(t)
	for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := dbs.ForPlugin(id).Query(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput, id)
	}
}

func TestReturnsRows(t *testing.T) {
	tests := map[string]bool{
		"select 1":                       true,
		"  WITH x AS (SELECT 1) SELECT *": true,
		"/* c */ pragma table_info(t)":   true,
		"INSERT INTO t VALUES (1)":       false,
		"UPDATE t SET v = 1 RETURNING v": true,
		"DELETE FROM t":                  false,
		"-- only a comment":              false,
	}
	for q, want := range tests {
		assert.Equal(t, want, returnsRows(q), q)
	}
}
