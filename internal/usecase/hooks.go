package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"limbo/internal/domain"
	"limbo/internal/infra/metrics"
	"limbo/internal/infra/tracer"
)

// Hook names, used in logs, events and metrics.
const (
	hookChatCreated          = "OnChatCreated"
	hookChatDeleted          = "OnChatDeleted"
	hookChatsDeleted         = "OnChatsDeleted"
	hookBeforeChatGeneration = "OnBeforeChatGeneration"
	hookBeforeChatIteration  = "OnBeforeChatIteration"
	hookAfterChatIteration   = "OnAfterChatIteration"
	hookAfterChatGeneration  = "OnAfterChatGeneration"
)

// HookDispatcher invokes one hook on every active plugin, in activation order
// and one at a time. A failing or panicking hook is logged and reported; the
// remaining plugins still run.
type HookDispatcher struct {
	provider domain.HookProvider
	logger   *slog.Logger
	bus      domain.EventBus   // optional
	metrics  *metrics.Recorder // optional
}

// NewHookDispatcher creates a dispatcher. bus and rec may be nil.
func NewHookDispatcher(provider domain.HookProvider, logger *slog.Logger, bus domain.EventBus, rec *metrics.Recorder) *HookDispatcher {
	return &HookDispatcher{provider: provider, logger: logger, bus: bus, metrics: rec}
}

// Dispatch calls fn for each plugin's hooks. It returns the number of failures.
func (d *HookDispatcher) Dispatch(ctx context.Context, hook, chatID string, fn func(context.Context, domain.Hooks) error) int {
	return d.dispatch(ctx, hook, chatID, false, fn)
}

// DispatchUntilAbort is Dispatch, except that plugins later in the order are
// skipped once ctx is done.
func (d *HookDispatcher) DispatchUntilAbort(ctx context.Context, hook, chatID string, fn func(context.Context, domain.Hooks) error) int {
	return d.dispatch(ctx, hook, chatID, true, fn)
}

func (d *HookDispatcher) dispatch(ctx context.Context, hook, chatID string, stopOnAbort bool, fn func(context.Context, domain.Hooks) error) int {
	if d == nil || d.provider == nil {
		return 0
	}
	failures := 0
	for _, ph := range d.provider.Hooks() {
		if stopOnAbort && ctx.Err() != nil {
			d.logger.Debug("plugin hooks skipped after abort", "hook", hook, "chat_id", chatID, "plugin", ph.PluginID)
			break
		}
		if err := d.call(ctx, hook, ph, fn); err != nil {
			failures++
			d.logger.Warn("plugin hook failed",
				"plugin", ph.PluginID,
				"hook", hook,
				"chat_id", chatID,
				"error", err,
			)
			d.metrics.RecordHookFailure(ctx, ph.PluginID, hook)
			domain.PublishEvent(ctx, d.bus, domain.EventPluginHookFailed, chatID, domain.HookFailurePayload{
				Plugin: ph.PluginID,
				Hook:   hook,
				Error:  err.Error(),
			})
		}
	}
	return failures
}

func (d *HookDispatcher) call(ctx context.Context, hook string, ph domain.PluginHooks, fn func(context.Context, domain.Hooks) error) (err error) {
	ctx, span := tracer.StartSpan(domain.ContextWithPluginID(ctx, ph.PluginID), "plugin.hook",
		trace.WithAttributes(
			tracer.StringAttr("plugin.id", ph.PluginID),
			tracer.StringAttr("hook", hook),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
		if err != nil {
			tracer.RecordError(span, err)
		}
	}()
	return fn(ctx, ph.Hooks)
}
