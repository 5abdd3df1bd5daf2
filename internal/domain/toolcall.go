package domain

import (
	"encoding/json"
	"fmt"
)

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// Terminal reports whether s is a settled state.
func (s ToolCallStatus) Terminal() bool {
	return s == ToolCallSuccess || s == ToolCallError
}

// ToolCallBase is shared by every tool call state.
type ToolCallBase struct {
	ID        string          `json:"id"`
	ToolID    string          `json:"tool_id"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Base returns the shared identity of the call.
func (b ToolCallBase) Base() ToolCallBase { return b }

// ToolCall is a pending, successful or failed tool invocation.
type ToolCall interface {
	Base() ToolCallBase
	Status() ToolCallStatus
	toolCall()
}

// SettledToolCall is a tool call in a terminal state.
type SettledToolCall interface {
	ToolCall
	settled()
}

// PendingToolCall has been requested by the LLM but has not finished.
// It is the only state with transitions.
type PendingToolCall struct {
	ToolCallBase
}

// SuccessToolCall finished with a result.
type SuccessToolCall struct {
	ToolCallBase
	Result string
}

// ErrorToolCall failed. Error is nil when no message was available.
type ErrorToolCall struct {
	ToolCallBase
	Error *string
}

// NewPendingToolCall creates a pending call with a fresh ID.
func NewPendingToolCall(toolID string, args json.RawMessage) PendingToolCall {
	return PendingToolCall{ToolCallBase{ID: NewID(), ToolID: toolID, Arguments: args}}
}

// Succeed settles the call with a result.
func (p PendingToolCall) Succeed(result string) SuccessToolCall {
	return SuccessToolCall{ToolCallBase: p.ToolCallBase, Result: result}
}

// Fail settles the call with an optional message.
func (p PendingToolCall) Fail(msg *string) ErrorToolCall {
	return ErrorToolCall{ToolCallBase: p.ToolCallBase, Error: msg}
}

// FailWith settles the call with err's message, or no message when err has none.
func (p PendingToolCall) FailWith(err error) ErrorToolCall {
	if err == nil || err.Error() == "" {
		return p.Fail(nil)
	}
	msg := err.Error()
	return p.Fail(&msg)
}

// Message returns the failure message or "".
func (e ErrorToolCall) Message() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}

func (PendingToolCall) Status() ToolCallStatus { return ToolCallPending }
func (SuccessToolCall) Status() ToolCallStatus { return ToolCallSuccess }
func (ErrorToolCall) Status() ToolCallStatus   { return ToolCallError }

func (PendingToolCall) toolCall() {}
func (SuccessToolCall) toolCall() {}
func (ErrorToolCall) toolCall()   {}

func (SuccessToolCall) settled() {}
func (ErrorToolCall) settled()   {}

type toolCallJSON struct {
	ToolCallBase
	Status ToolCallStatus `json:"status"`
	Result *string        `json:"result,omitempty"`
	Error  *string        `json:"error,omitempty"`
}

// MarshalToolCall encodes a call with its status discriminator.
func MarshalToolCall(c ToolCall) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil tool call", ErrInvalidInput)
	}
	v := toolCallJSON{ToolCallBase: c.Base(), Status: c.Status()}
	switch tc := c.(type) {
	case SuccessToolCall:
		v.Result = &tc.Result
	case ErrorToolCall:
		v.Error = tc.Error
	}
	return json.Marshal(v)
}

// UnmarshalToolCall decodes the output of MarshalToolCall.
func UnmarshalToolCall(b []byte) (ToolCall, error) {
	var v toolCallJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode tool call: %w", err)
	}
	switch v.Status {
	case ToolCallPending:
		return PendingToolCall{v.ToolCallBase}, nil
	case ToolCallSuccess:
		if v.Result == nil {
			return nil, fmt.Errorf("%w: success tool call without result", ErrInvalidInput)
		}
		return SuccessToolCall{ToolCallBase: v.ToolCallBase, Result: *v.Result}, nil
	case ToolCallError:
		return ErrorToolCall{ToolCallBase: v.ToolCallBase, Error: v.Error}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool call status %q", ErrInvalidInput, v.Status)
	}
}
