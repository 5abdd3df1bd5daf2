package builtin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limbo/internal/domain"
)

func TestMakeTitle(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "Hello there", 40, "Hello there"},
		{"collapses whitespace", "  plan\n\na   trip ", 40, "plan a trip"},
		{"cuts on word", "What is the weather like in Oslo today", 20, "What is the weather…"},
		{"cuts long word", "Supercalifragilisticexpialidocious", 10, "Supercalif…"},
		{"empty", "   ", 40, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, makeTitle(tt.in, tt.limit))
		})
	}
}

func TestClockFormat(t *testing.T) {
	c := &Clock{now: func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }}

	got, err := c.format("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Sun, 01 Mar 2026 21:30:00 JST", got)

	_, err = c.format("Mars/Olympus")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRenderUsage(t *testing.T) {
	out, err := renderUsage(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "_No generations yet._", out)

	out, err = renderUsage(json.RawMessage(`[{"llm":"echo","generations":3,"iterations":4,"tool_calls":1}]`))
	require.NoError(t, err)
	assert.Contains(t, out, "| echo | 3 | 4 | 1 |")

	_, err = renderUsage(json.RawMessage(`{`))
	assert.Error(t, err)
}

func collect(t *testing.T, ch <-chan domain.LLMEvent) (string, []domain.ToolCallRequest) {
	t.Helper()
	var text string
	var calls []domain.ToolCallRequest
	for ev := range ch {
		switch e := ev.(type) {
		case domain.TextDelta:
			text += e.Text
		case domain.ToolCallRequest:
			calls = append(calls, e)
		}
	}
	return text, calls
}

func TestEchoLLMReplies(t *testing.T) {
	llm := &echoLLM{}
	clock := []domain.ToolDefinition{{ID: "clock"}}
	user := func(s string) []domain.PromptMessage {
		return []domain.PromptMessage{domain.TextPromptMessage{Role: domain.PromptUser, Content: s}}
	}

	tests := []struct {
		name      string
		args      domain.ChatArgs
		wantText  string
		wantCalls int
	}{
		{"echoes", domain.ChatArgs{Prompt: domain.ChatPrompt{Messages: user("hello big world")}}, "hello big world", 0},
		{"asks clock", domain.ChatArgs{Tools: clock, Prompt: domain.ChatPrompt{Messages: user("what time is it")}}, "", 1},
		{"no clock offered", domain.ChatArgs{Prompt: domain.ChatPrompt{Messages: user("what time is it")}}, "what time is it", 0},
		{"reports tool", domain.ChatArgs{Prompt: domain.ChatPrompt{Messages: []domain.PromptMessage{
			domain.ToolPromptMessage{ToolID: "clock", Result: "noon"},
		}}}, "The clock tool says: noon", 0},
		{"empty prompt", domain.ChatArgs{}, "(nothing to echo)", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := llm.Chat(context.Background(), tt.args)
			require.NoError(t, err)
			text, calls := collect(t, ch)
			assert.Equal(t, tt.wantText, text)
			assert.Len(t, calls, tt.wantCalls)
		})
	}
}

func TestEchoLLMStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := (&echoLLM{}).Chat(ctx, domain.ChatArgs{Prompt: domain.ChatPrompt{Messages: []domain.PromptMessage{
		domain.TextPromptMessage{Role: domain.PromptUser, Content: "one two three"},
	}}})
	require.NoError(t, err)
	<-ch
	cancel()
	for range ch {
	}
}
