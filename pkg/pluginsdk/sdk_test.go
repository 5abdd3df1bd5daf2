package pluginsdk

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limbo/internal/domain"
	"limbo/internal/plugin"
)

type greeter struct {
	BasePlugin
	BaseHooks
	created []string
}

func (g *greeter) OnChatCreated(_ context.Context, chatID string) error {
	g.created = append(g.created, chatID)
	return nil
}

func TestBasePluginManifest(t *testing.T) {
	m := PluginManifest{ID: "greeter", Name: "Greeter", Version: "1.2.3"}
	assert.Equal(t, m, NewBasePlugin(m).Manifest())
}

func TestBaseHooksAreNoOps(t *testing.T) {
	var h Hooks = BaseHooks{}
	ctx := context.Background()
	gen := &ChatGeneration{}

	assert.NoError(t, h.OnActivate(ctx, PluginAPI{}))
	assert.NoError(t, h.OnDeactivate(ctx))
	assert.NoError(t, h.OnChatCreated(ctx, "c1"))
	assert.NoError(t, h.OnChatDeleted(ctx, "c1"))
	assert.NoError(t, h.OnChatsDeleted(ctx, []string{"c1"}))
	assert.NoError(t, h.OnBeforeChatGeneration(ctx, gen))
	assert.NoError(t, h.OnBeforeChatIteration(ctx, gen))
	assert.NoError(t, h.OnAfterChatIteration(ctx, gen))
	assert.NoError(t, h.OnAfterChatGeneration(ctx, gen))
}

func TestEmbeddedHooksOverride(t *testing.T) {
	g := &greeter{BasePlugin: NewBasePlugin(PluginManifest{ID: "greeter"})}
	hooks := plugin.ResolveHooks(g)

	require.NoError(t, hooks.OnChatCreated(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, g.created)
}

func TestNewTool(t *testing.T) {
	type params struct {
		Name string `json:"name"`
	}
	tl := NewTool("greet", "Greets someone.", json.RawMessage(`{"type":"object"}`),
		func(_ context.Context, _ ToolExecuteArgs, p params) (any, error) {
			return "hello " + p.Name, nil
		})

	out, err := tl.Execute(context.Background(), ToolExecuteArgs{
		Call: domain.NewPendingToolCall("greet", json.RawMessage(`{"name":"ada"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)
}
