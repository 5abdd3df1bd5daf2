package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"limbo/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
// On Execute, it validates the call's arguments against the compiled schema
// before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates arguments against
// the tool's JSON Schema. Tools without a schema are returned unchanged.
// Returns an error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema()
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.ID(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.ID(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) ID() string              { return s.inner.ID() }
func (s *SchemaValidatingTool) Description() string     { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() json.RawMessage { return s.inner.Schema() }

// Unwrap returns the wrapped tool.
func (s *SchemaValidatingTool) Unwrap() domain.Tool { return s.inner }

// Execute rejects arguments that are not JSON or don't match the schema.
// Missing arguments are validated as an empty object.
func (s *SchemaValidatingTool) Execute(ctx context.Context, args domain.ToolExecuteArgs) (string, error) {
	if err := s.validate(args.Call.Arguments); err != nil {
		return "", err
	}
	return s.inner.Execute(ctx, args)
}

func (s *SchemaValidatingTool) validate(raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.NewSubSystemError("tools", "Tool.Execute", domain.ErrInvalidInput,
			fmt.Sprintf("arguments for %q are not valid JSON: %v", s.ID(), err))
	}
	if err := s.schema.Validate(v); err != nil {
		return domain.NewSubSystemError("tools", "Tool.Execute", domain.ErrInvalidInput,
			fmt.Sprintf("arguments for %q failed schema validation: %v", s.ID(), err))
	}
	return nil
}
