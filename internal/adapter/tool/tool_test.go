package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limbo/internal/domain"
)

// stubTool records the arguments it was called with.
type stubTool struct {
	id     string
	schema json.RawMessage
	result string
	err    error
	got    json.RawMessage
	calls  int
}

func (s *stubTool) ID() string              { return s.id }
func (s *stubTool) Description() string     { return "stub " + s.id }
func (s *stubTool) Schema() json.RawMessage { return s.schema }
func (s *stubTool) Execute(_ context.Context, args domain.ToolExecuteArgs) (string, error) {
	s.calls++
	s.got = args.Call.Arguments
	return s.result, s.err
}

const nameSchema = `{
	"type": "object",
	"properties": {"name": {"type": "string"}},
	"required": ["name"]
}`

func callWith(args string) domain.ToolExecuteArgs {
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return domain.ToolExecuteArgs{Call: domain.NewPendingToolCall("t", raw)}
}

// --- Registry ---

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{id: "search"}))

	got, ok := r.Get("search")
	require.True(t, ok)
	assert.Equal(t, "search", got.ID())

	r.Unregister("search")
	r.Unregister("search")
	r.Unregister("unknown")
	_, ok = r.Get("search")
	assert.False(t, ok)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{id: "search"}))

	err := r.Register(&stubTool{id: "search"})
	require.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, domain.CodeToolDuplicate, domain.ErrorCodeOf(err))
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry(slog.Default())
	assert.ErrorIs(t, r.Register(&stubTool{}), domain.ErrInvalidInput)

	err := r.Register(&stubTool{id: "broken", schema: json.RawMessage(`{"type": 42}`)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestRegistry_UnregisterLeavesOthers(t *testing.T) {
	r := NewRegistry(slog.Default())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(&stubTool{id: id}))
	}
	r.Unregister("b")

	var ids []string
	for _, tl := range r.List() {
		ids = append(ids, tl.ID())
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestRegistry_DefinitionsSortedByID(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.NoError(t, r.Register(&stubTool{id: "zeta", schema: json.RawMessage(nameSchema)}))
	require.NoError(t, r.Register(&stubTool{id: "alpha"}))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].ID)
	assert.Equal(t, "zeta", defs[1].ID)
	assert.Equal(t, "stub zeta", defs[1].Description)
	assert.JSONEq(t, nameSchema, string(defs[1].Schema), "definitions carry the unwrapped schema")
}

func TestRegistry_ValidatesBeforeExecute(t *testing.T) {
	r := NewRegistry(slog.Default())
	inner := &stubTool{id: "greet", schema: json.RawMessage(nameSchema), result: "hi"}
	require.NoError(t, r.Register(inner))
	tl, _ := r.Get("greet")

	_, err := tl.Execute(context.Background(), callWith(`{}`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeToolArgsInvalid, domain.ErrorCodeOf(err))
	assert.Zero(t, inner.calls)

	out, err := tl.Execute(context.Background(), callWith(`{"name":"ada"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.JSONEq(t, `{"name":"ada"}`, string(inner.got))
}

// --- Schema validation ---

func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"valid", `{"name":"alice"}`, ""},
		{"missing required", `{}`, "failed schema validation"},
		{"wrong type", `{"name": 42}`, "failed schema validation"},
		{"not json", `{name`, "not valid JSON"},
		{"empty arguments", ``, "failed schema validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &stubTool{id: "test", schema: json.RawMessage(nameSchema), result: "ok"}
			wrapped, err := WithSchemaValidation(inner)
			require.NoError(t, err)

			out, err := wrapped.Execute(context.Background(), callWith(tt.args))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "ok", out)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Zero(t, inner.calls, "inner tool must not run")
		})
	}
}

func TestSchemaValidation_NoSchemaPassthrough(t *testing.T) {
	for _, schema := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		inner := &stubTool{id: "free", schema: schema}
		wrapped, err := WithSchemaValidation(inner)
		require.NoError(t, err)
		assert.Same(t, inner, wrapped)
	}
}

func TestSchemaValidation_CompilationError(t *testing.T) {
	_, err := WithSchemaValidation(&stubTool{id: "bad", schema: json.RawMessage(`{"type": "nonsense"}`)})
	assert.Error(t, err)
}

func TestSchemaValidation_DelegatesMetadata(t *testing.T) {
	inner := &stubTool{id: "meta", schema: json.RawMessage(nameSchema)}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	assert.Equal(t, "meta", wrapped.ID())
	assert.Equal(t, "stub meta", wrapped.Description())
	assert.Equal(t, inner.Schema(), wrapped.Schema())
	assert.Same(t, inner, wrapped.(*SchemaValidatingTool).Unwrap())
}

func TestSchemaValidation_InnerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	wrapped, err := WithSchemaValidation(&stubTool{id: "x", schema: json.RawMessage(`{"type":"object"}`), err: boom})
	require.NoError(t, err)

	_, err = wrapped.Execute(context.Background(), callWith(`{}`))
	assert.ErrorIs(t, err, boom)
}

// --- Func ---

type clockParams struct {
	Zone string `json:"zone"`
}

func TestFunc_DecodesParams(t *testing.T) {
	var got clockParams
	f := NewFunc("clock", "tells time", nil, func(_ context.Context, _ domain.ToolExecuteArgs, p clockParams) (any, error) {
		got = p
		return "noon", nil
	})

	out, err := f.Execute(context.Background(), callWith(`{"zone":"UTC"}`))
	require.NoError(t, err)
	assert.Equal(t, "noon", out)
	assert.Equal(t, "UTC", got.Zone)
	assert.Equal(t, "clock", f.ID())
	assert.Equal(t, "tells time", f.Description())
}

func TestFunc_EmptyArgumentsYieldZero(t *testing.T) {
	f := NewFunc("clock", "", nil, func(_ context.Context, _ domain.ToolExecuteArgs, p clockParams) (any, error) {
		return p.Zone == "", nil
	})
	out, err := f.Execute(context.Background(), callWith(""))
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestFunc_InvalidParams(t *testing.T) {
	f := NewFunc("clock", "", nil, func(context.Context, domain.ToolExecuteArgs, clockParams) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	_, err := f.Execute(context.Background(), callWith(`{"zone": 5}`))
	assert.Equal(t, domain.CodeToolArgsInvalid, domain.ErrorCodeOf(err))
}

func TestFormatResult(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{ts, ts.String()},
		{map[string]int{"n": 1}, "{\n  \"n\": 1\n}"},
	}
	for _, tt := range tests {
		got, err := FormatResult(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatResult(func() {})
	assert.Error(t, err)
}
