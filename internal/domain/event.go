package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventChatCreated  EventType = "chat.created"
	EventChatDeleted  EventType = "chat.deleted"
	EventChatRenamed  EventType = "chat.renamed"
	EventMessageSaved EventType = "chat.message.saved"

	EventGenerationStarted   EventType = "generation.started"
	EventGenerationCompleted EventType = "generation.completed"
	EventGenerationAborted   EventType = "generation.aborted"
	EventIterationStarted    EventType = "generation.iteration.started"
	EventIterationCompleted  EventType = "generation.iteration.completed"
	EventTextDelta           EventType = "generation.text.delta"

	EventToolCallPending EventType = "tool.call.pending"
	EventToolCallSettled EventType = "tool.call.settled"

	EventPluginActivated   EventType = "plugin.activated"
	EventPluginDeactivated EventType = "plugin.deactivated"
	EventPluginHookFailed  EventType = "plugin.hook.failed"

	EventNotificationShown EventType = "ui.notification.shown"
	EventChatPanelShown    EventType = "ui.chat_panel.shown"

	EventCommandExecuted EventType = "command.executed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ChatID    string          `json:"chat_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// Payloads carried by the events above.

// TextDeltaPayload accompanies EventTextDelta.
type TextDeltaPayload struct {
	MessageID string `json:"message_id"`
	Iteration int    `json:"iteration"`
	Text      string `json:"text"`
}

// ToolCallPayload accompanies EventToolCallPending and EventToolCallSettled.
type ToolCallPayload struct {
	MessageID string          `json:"message_id"`
	Iteration int             `json:"iteration"`
	CallID    string          `json:"call_id"`
	ToolID    string          `json:"tool_id"`
	Status    ToolCallStatus  `json:"status"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HookFailurePayload accompanies EventPluginHookFailed.
type HookFailurePayload struct {
	Plugin string `json:"plugin"`
	Hook   string `json:"hook"`
	Error  string `json:"error"`
}

// GenerationPayload accompanies generation lifecycle events.
type GenerationPayload struct {
	MessageID  string `json:"message_id"`
	LLM        string `json:"llm"`
	Iterations int    `json:"iterations"`
	Error      string `json:"error,omitempty"`
}

// MustJSON marshals v for an event payload, panicking on error (programmer error).
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("domain: marshal event payload: " + err.Error())
	}
	return b
}

// PublishEvent publishes a typed payload when bus is non-nil.
func PublishEvent(ctx context.Context, bus EventBus, typ EventType, chatID string, payload any) {
	if bus == nil {
		return
	}
	ev := Event{Type: typ, Timestamp: time.Now(), ChatID: chatID}
	if payload != nil {
		ev.Payload = MustJSON(payload)
	}
	bus.Publish(ctx, ev)
}

// ChatPanelPayload accompanies EventChatPanelShown.
type ChatPanelPayload struct {
	Plugin  string          `json:"plugin,omitempty"`
	PanelID string          `json:"panel_id"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NotificationPayload accompanies EventNotificationShown.
type NotificationPayload struct {
	Plugin string `json:"plugin,omitempty"`
	Notification
}

// CommandPayload accompanies EventCommandExecuted.
type CommandPayload struct {
	CommandID string `json:"command_id"`
	Name      string `json:"name"`
	Error     string `json:"error,omitempty"`
}
