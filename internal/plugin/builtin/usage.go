package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"limbo/internal/domain"
)

const usageSchema = `CREATE TABLE IF NOT EXISTS generations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    TEXT NOT NULL,
	llm        TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	tool_calls INTEGER NOT NULL,
	state      TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

const usageSummary = `SELECT llm,
	COUNT(*) AS generations,
	SUM(iterations) AS iterations,
	SUM(tool_calls) AS tool_calls
FROM generations GROUP BY llm ORDER BY llm`

// Usage records every generation in its own database and shows a summary
// panel through the "usage.show" command.
type Usage struct {
	api domain.PluginAPI
}

func NewUsage() *Usage { return &Usage{} }

func (*Usage) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		ID:          "usage",
		Name:        "Usage",
		Version:     "1.0.0",
		Description: "Counts generations, iterations and tool calls per model.",
		Author:      "limbo",
		Permissions: []domain.Permission{domain.PermissionDatabase},
	}
}

func (u *Usage) OnActivate(ctx context.Context, api domain.PluginAPI) error {
	u.api = api
	if _, err := api.Database.Query(ctx, usageSchema); err != nil {
		return fmt.Errorf("create usage table: %w", err)
	}
	if err := api.UI.RegisterChatPanel(domain.ChatPanel{
		ID:     "usage",
		Title:  "Usage",
		Render: renderUsage,
	}); err != nil {
		return err
	}
	return api.Commands.Register(domain.Command{
		ID:      "usage.show",
		Name:    "Show model usage",
		Execute: u.show,
	})
}

func (u *Usage) OnAfterChatGeneration(ctx context.Context, gen *domain.ChatGeneration) error {
	calls := 0
	for _, it := range gen.Iterations {
		calls += len(it.ToolCalls)
	}
	state := "done"
	if gen.State == domain.GenerationAborted {
		state = "aborted"
	}
	_, err := u.api.Database.Query(ctx,
		`INSERT INTO generations (chat_id, llm, iterations, tool_calls, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		gen.ChatID, gen.LLM.ID(), len(gen.Iterations), calls, state, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (u *Usage) show(ctx context.Context) error {
	res, err := u.api.Database.Query(ctx, usageSummary)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res.Rows)
	if err != nil {
		return err
	}
	return u.api.UI.ShowChatPanel(ctx, domain.ShowChatPanelOptions{ID: "usage", Data: data})
}

func renderUsage(data json.RawMessage) (string, error) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("decode usage rows: %w", err)
	}
	if len(rows) == 0 {
		return "_No generations yet._", nil
	}
	var b strings.Builder
	b.WriteString("| Model | Generations | Iterations | Tool calls |\n|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %v | %v | %v | %v |\n", r["llm"], r["generations"], r["iterations"], r["tool_calls"])
	}
	return b.String(), nil
}
