package plugin

import (
	"context"

	"limbo/internal/domain"
)

// ResolveHooks returns p's complete hook set. Plugins implementing
// domain.Hooks are used as is; otherwise each single-hook interface p
// implements is bound and the rest are no-ops.
func ResolveHooks(p domain.Plugin) domain.Hooks {
	if h, ok := p.(domain.Hooks); ok {
		return h
	}
	var r resolvedHooks
	if h, ok := p.(domain.ActivateHook); ok {
		r.activate = h.OnActivate
	}
	if h, ok := p.(domain.DeactivateHook); ok {
		r.deactivate = h.OnDeactivate
	}
	if h, ok := p.(domain.ChatCreatedHook); ok {
		r.chatCreated = h.OnChatCreated
	}
	if h, ok := p.(domain.ChatDeletedHook); ok {
		r.chatDeleted = h.OnChatDeleted
	}
	if h, ok := p.(domain.ChatsDeletedHook); ok {
		r.chatsDeleted = h.OnChatsDeleted
	}
	if h, ok := p.(domain.BeforeChatGenerationHook); ok {
		r.beforeGeneration = h.OnBeforeChatGeneration
	}
	if h, ok := p.(domain.BeforeChatIterationHook); ok {
		r.beforeIteration = h.OnBeforeChatIteration
	}
	if h, ok := p.(domain.AfterChatIterationHook); ok {
		r.afterIteration = h.OnAfterChatIteration
	}
	if h, ok := p.(domain.AfterChatGenerationHook); ok {
		r.afterGeneration = h.OnAfterChatGeneration
	}
	return &r
}

type generationHook func(context.Context, *domain.ChatGeneration) error

type resolvedHooks struct {
	activate         func(context.Context, domain.PluginAPI) error
	deactivate       func(context.Context) error
	chatCreated      func(context.Context, string) error
	chatDeleted      func(context.Context, string) error
	chatsDeleted     func(context.Context, []string) error
	beforeGeneration generationHook
	beforeIteration  generationHook
	afterIteration   generationHook
	afterGeneration  generationHook
}

func (r *resolvedHooks) OnActivate(ctx context.Context, api domain.PluginAPI) error {
	if r.activate == nil {
		return nil
	}
	return r.activate(ctx, api)
}

func (r *resolvedHooks) OnDeactivate(ctx context.Context) error {
	if r.deactivate == nil {
		return nil
	}
	return r.deactivate(ctx)
}

func (r *resolvedHooks) OnChatCreated(ctx context.Context, chatID string) error {
	if r.chatCreated == nil {
		return nil
	}
	return r.chatCreated(ctx, chatID)
}

func (r *resolvedHooks) OnChatDeleted(ctx context.Context, chatID string) error {
	if r.chatDeleted == nil {
		return nil
	}
	return r.chatDeleted(ctx, chatID)
}

func (r *resolvedHooks) OnChatsDeleted(ctx context.Context, chatIDs []string) error {
	if r.chatsDeleted == nil {
		return nil
	}
	return r.chatsDeleted(ctx, chatIDs)
}

func (r *resolvedHooks) OnBeforeChatGeneration(ctx context.Context, gen *domain.ChatGeneration) error {
	return r.beforeGeneration.call(ctx, gen)
}

func (r *resolvedHooks) OnBeforeChatIteration(ctx context.Context, gen *domain.ChatGeneration) error {
	return r.beforeIteration.call(ctx, gen)
}

func (r *resolvedHooks) OnAfterChatIteration(ctx context.Context, gen *domain.ChatGeneration) error {
	return r.afterIteration.call(ctx, gen)
}

func (r *resolvedHooks) OnAfterChatGeneration(ctx context.Context, gen *domain.ChatGeneration) error {
	return r.afterGeneration.call(ctx, gen)
}

func (h generationHook) call(ctx context.Context, gen *domain.ChatGeneration) error {
	if h == nil {
		return nil
	}
	return h(ctx, gen)
}
