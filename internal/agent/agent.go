// Package agent drives the bounded tool-calling loop: ask the model, execute
// the tool calls it returns in order, feed the results back, and stop on a
// final text answer or when the turn budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/memory"
	"github.com/openintentos/openintent/internal/store"
	"github.com/openintentos/openintent/internal/tools"
)

// Config bounds one agent run.
type Config struct {
	MaxTurns    int     // default 20
	Model       string  // empty uses the client's current model
	Temperature float64 // default 0.0
	MaxTokens   int     // default 4096
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 20
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// Response is the outcome of one agent run. HitTurnLimit marks a run that
// exhausted its budget before the model produced a final answer; Text then
// carries whatever partial text the last turn emitted.
type Response struct {
	Text         string
	TurnsUsed    int
	InputTokens  int
	OutputTokens int
	HitTurnLimit bool
}

// Agent executes ReAct runs against a client and an adapter registry. The
// memory manager is optional; when present, tool dispatches are recorded as
// episodic action/result pairs.
type Agent struct {
	client   *llm.Client
	registry *tools.Registry
	memory   *memory.Manager
	cfg      Config
	logger   *slog.Logger
}

func New(client *llm.Client, registry *tools.Registry, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:   client,
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// WithMemory attaches a task-scoped memory manager for episodic recording.
func (a *Agent) WithMemory(m *memory.Manager) *Agent {
	a.memory = m
	return a
}

// Run executes the loop over the given context's conversation. The returned
// conversation state lives in actx and includes every assistant and
// tool-result message appended along the way.
func (a *Agent) Run(ctx context.Context, actx *Context) (*Response, error) {
	runCtx, span := otel.Tracer("openintent").Start(ctx, "agent.run")
	span.SetAttributes(attribute.Int("agent.max_turns", a.cfg.MaxTurns))
	defer span.End()

	resp := &Response{}
	catalog := a.registry.AllTools()

	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		resp.TurnsUsed = turn + 1

		llmResp, err := a.chatTurn(runCtx, actx, catalog)
		if err != nil {
			return nil, err
		}
		resp.InputTokens += llmResp.InputTokens
		resp.OutputTokens += llmResp.OutputTokens

		if len(llmResp.ToolCalls) == 0 {
			resp.Text = llmResp.Text
			return resp, nil
		}

		// Keep the assistant message, tool calls included, ahead of the
		// results so the next turn sees them in protocol order.
		actx.append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   llmResp.Text,
			ToolCalls: llmResp.ToolCalls,
		})
		resp.Text = llmResp.Text

		for _, call := range llmResp.ToolCalls {
			result := a.dispatch(runCtx, call)
			actx.append(llm.Message{
				Role:       llm.RoleToolResult,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	resp.HitTurnLimit = true
	a.logger.Warn("agent hit turn limit", "turns", resp.TurnsUsed)
	return resp, nil
}

func (a *Agent) chatTurn(ctx context.Context, actx *Context, catalog []llm.ToolDef) (*llm.Response, error) {
	ctx, span := otel.Tracer("openintent").Start(ctx, "agent.turn")
	defer span.End()
	return a.client.Chat(ctx, llm.Request{
		Model:       a.cfg.Model,
		System:      actx.systemPrompt,
		Messages:    actx.messages,
		Tools:       catalog,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
}

// dispatch executes one tool call. Failures come back as result text so the
// model can see what went wrong and recover; they never abort the loop.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall) string {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf("Error: tool %s received malformed arguments: %v", call.Name, err)
		}
	}
	a.recordEpisode(ctx, store.EpisodeAction, map[string]any{"tool": call.Name, "arguments": args})

	output, err := a.registry.Execute(ctx, call.Name, args)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		a.recordEpisode(ctx, store.EpisodeResult, map[string]any{"tool": call.Name, "error": err.Error()})
		return fmt.Sprintf("Error: %v", err)
	}
	a.recordEpisode(ctx, store.EpisodeResult, map[string]any{"tool": call.Name, "output": output})
	return output
}

func (a *Agent) recordEpisode(ctx context.Context, kind store.EpisodeKind, content map[string]any) {
	if a.memory == nil {
		return
	}
	if err := a.memory.Remember(ctx, kind, content); err != nil {
		a.logger.Debug("episode write failed", "kind", kind, "error", err)
	}
}
