package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/memory"
	"github.com/openintentos/openintent/internal/store"
)

// MemoryAdapter exposes the semantic memory layer to the agent as tools.
type MemoryAdapter struct {
	manager *memory.Manager
}

func NewMemoryAdapter(manager *memory.Manager) *MemoryAdapter {
	return &MemoryAdapter{manager: manager}
}

func (m *MemoryAdapter) ID() string   { return "memory" }
func (m *MemoryAdapter) Type() string { return "memory" }

func (m *MemoryAdapter) Connect(ctx context.Context) error    { return nil }
func (m *MemoryAdapter) Disconnect(ctx context.Context) error { return nil }
func (m *MemoryAdapter) HealthCheck(ctx context.Context) error {
	return nil
}
func (m *MemoryAdapter) RequiredAuth() string { return "" }

func (m *MemoryAdapter) Tools() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        "memory_save",
			Description: "Save a permanent memory. Use for user preferences, learned facts, recurring patterns, and acquired skills.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"category": {"type": "string", "enum": ["preference", "knowledge", "pattern", "skill"]},
					"content": {"type": "string"},
					"importance": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"required": ["category", "content"]
			}`),
		},
		{
			Name:        "memory_search",
			Description: "Search permanent memories by keyword. Returns the most important matches first.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"keyword": {"type": "string"},
					"category": {"type": "string", "enum": ["preference", "knowledge", "pattern", "skill"]},
					"limit": {"type": "integer", "minimum": 1, "maximum": 50}
				},
				"required": ["keyword"]
			}`),
		},
	}
}

func (m *MemoryAdapter) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case "memory_save":
		return m.save(ctx, args)
	case "memory_search":
		return m.search(ctx, args)
	default:
		return "", &ExecError{Tool: toolName, Reason: "unknown tool"}
	}
}

func (m *MemoryAdapter) save(ctx context.Context, args map[string]any) (string, error) {
	category, _ := args["category"].(string)
	content, _ := args["content"].(string)
	importance, ok := args["importance"].(float64)
	if !ok {
		importance = 0.5
	}
	id, err := m.manager.Save(ctx, store.MemoryCategory(category), content, importance)
	if err != nil {
		return "", &ExecError{Tool: "memory_save", Reason: "save failed", Err: err}
	}
	return fmt.Sprintf("saved memory %s", id), nil
}

func (m *MemoryAdapter) search(ctx context.Context, args map[string]any) (string, error) {
	keyword, _ := args["keyword"].(string)
	category, _ := args["category"].(string)
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	results, err := m.manager.Recall(ctx, keyword, store.MemoryCategory(category), limit)
	if err != nil {
		return "", &ExecError{Tool: "memory_search", Reason: "search failed", Err: err}
	}
	if len(results) == 0 {
		return "no matching memories", nil
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s, importance %.2f] %s\n", r.Category, r.Importance, r.Content)
	}
	return b.String(), nil
}
