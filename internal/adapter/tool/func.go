package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"limbo/internal/domain"
)

// Handler runs a typed tool call.
//
// The returned value becomes the call's result:
//   - string is used as is
//   - nil yields an empty result
//   - any other value is JSON-marshaled
type Handler[P any] func(ctx context.Context, args domain.ToolExecuteArgs, params P) (any, error)

// Func is a Tool whose arguments are decoded into P before the handler runs.
type Func[P any] struct {
	id          string
	description string
	schema      json.RawMessage
	handler     Handler[P]
}

// NewFunc builds a tool from a typed handler.
func NewFunc[P any](id, description string, schema json.RawMessage, handler Handler[P]) *Func[P] {
	return &Func[P]{id: id, description: description, schema: schema, handler: handler}
}

func (f *Func[P]) ID() string              { return f.id }
func (f *Func[P]) Description() string     { return f.description }
func (f *Func[P]) Schema() json.RawMessage { return f.schema }

func (f *Func[P]) Execute(ctx context.Context, args domain.ToolExecuteArgs) (string, error) {
	p, err := ParseParams[P](args.Call.Arguments)
	if err != nil {
		return "", err
	}
	result, err := f.handler(ctx, args, p)
	if err != nil {
		return "", err
	}
	return FormatResult(result)
}

// ParseParams decodes tool arguments into P. Empty arguments yield the zero P.
func ParseParams[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, domain.NewSubSystemError("tools", "Tool.Execute", domain.ErrInvalidInput,
			fmt.Sprintf("invalid params: %v", err))
	}
	return p, nil
}

// FormatResult converts a handler's return value into a result string.
func FormatResult(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("format result: %w", err)
		}
		return string(data), nil
	}
}
