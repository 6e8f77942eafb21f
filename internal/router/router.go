package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openintentos/openintent/internal/agent"
	"github.com/openintentos/openintent/internal/bus"
	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/memory"
	"github.com/openintentos/openintent/internal/store"
	"github.com/openintentos/openintent/internal/tools"
)

// maxChunkChars caps one outbound emit; longer outputs are split on rune
// boundaries.
const maxChunkChars = 4000

const continuationPrompt = `You ran out of turns before finishing. Here is your partial result so far:

%s

COMPLETE the remaining work now. Do NOT repeat steps that are already finished; continue from where you stopped and produce the final answer.`

// Emitter receives each sub-task's output chunks as they complete.
type Emitter func(chunk string)

// TaskOutcome is the result of one routed sub-task.
type TaskOutcome struct {
	Index        int
	Tier         Tier
	Model        string
	Text         string
	TurnsUsed    int
	InputTokens  int
	OutputTokens int
	Err          error
}

// Options configures one RunMulti invocation.
type Options struct {
	SystemPrompt string
	SessionID    string
	Emit         Emitter
}

// Router runs routed sub-tasks sequentially, one provider binding at a time.
type Router struct {
	client   *llm.Client
	registry *tools.Registry
	store    *store.Store
	keys     Keys
	bus      *bus.Bus
	logger   *slog.Logger
}

// New builds a router. store and bus may be nil; without a store no task rows
// or episodes are recorded.
func New(client *llm.Client, registry *tools.Registry, st *store.Store, keys Keys, eventBus *bus.Bus, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		client:   client,
		registry: registry,
		store:    st,
		keys:     keys,
		bus:      eventBus,
		logger:   logger,
	}
}

// RunMulti splits the message, runs every sub-task with its tier's model and
// turn budget, and restores the primary binding afterwards. Outcomes arrive
// in task order; a sub-task failure is recorded in its outcome and does not
// stop the remaining tasks.
func (r *Router) RunMulti(ctx context.Context, message string, opts Options) ([]TaskOutcome, error) {
	tasks := SplitTasks(message)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("message contains no tasks")
	}
	defer r.client.RestoreDefaults()

	history := r.sessionHistory(ctx, opts.SessionID)
	r.recordUserTurn(ctx, opts.SessionID, message)

	outcomes := make([]TaskOutcome, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome := r.runTask(ctx, task, opts, history)
		outcomes = append(outcomes, outcome)
		r.recordAssistantTurn(ctx, opts.SessionID, outcome)

		if opts.Emit != nil {
			text := outcome.Text
			if outcome.Err != nil {
				text = fmt.Sprintf("task %d failed: %v", task.Index+1, outcome.Err)
			}
			emitChunked(opts.Emit, text)
		}
		r.publishOutcome(outcome)
	}
	return outcomes, nil
}

func (r *Router) runTask(ctx context.Context, task SubTask, opts Options, history []llm.Message) TaskOutcome {
	choice := ModelForTier(task.Tier, r.keys)
	r.bindChoice(choice)

	outcome := TaskOutcome{Index: task.Index, Tier: task.Tier, Model: r.client.Model()}
	taskRow := r.createTaskRow(ctx, opts.SessionID, task.Text)

	resp, err := r.runAgent(ctx, task, choice, opts, taskRow, history)
	if err != nil {
		resp, err = r.retryTask(ctx, task, choice, opts, taskRow, history, err)
	}
	if err != nil {
		outcome.Err = err
		r.finishTaskRow(ctx, taskRow, store.TaskFailed)
		return outcome
	}

	outcome.Text = resp.Text
	outcome.TurnsUsed = resp.TurnsUsed
	outcome.InputTokens = resp.InputTokens
	outcome.OutputTokens = resp.OutputTokens
	r.finishTaskRow(ctx, taskRow, store.TaskCompleted)
	return outcome
}

// retryTask applies the failover policy: a rate-limited cheap model gets one
// retry on the primary binding; any other provider error gets one retry on
// the primary when cheap, or the same binding otherwise.
func (r *Router) retryTask(ctx context.Context, task SubTask, choice ModelChoice, opts Options, taskRow *store.Task, history []llm.Message, firstErr error) (*agent.Response, error) {
	if ctx.Err() != nil {
		return nil, firstErr
	}
	onCheap := !choice.Primary
	switch {
	case llm.IsRateLimit(firstErr) && onCheap:
		r.logger.Warn("cheap model rate limited, retrying on primary", "task", task.Index, "error", firstErr)
		r.client.RestoreDefaults()
	case onCheap:
		r.logger.Warn("provider error on cheap model, retrying on primary", "task", task.Index, "error", firstErr)
		r.client.RestoreDefaults()
	default:
		r.logger.Warn("provider error, retrying once", "task", task.Index, "error", firstErr)
	}

	resp, err := r.runAgent(ctx, task, choice, opts, taskRow, history)
	if err != nil {
		return nil, fmt.Errorf("retry failed: %w (first error: %v)", err, firstErr)
	}
	return resp, nil
}

func (r *Router) runAgent(ctx context.Context, task SubTask, choice ModelChoice, opts Options, taskRow *store.Task, history []llm.Message) (*agent.Response, error) {
	ag := agent.New(r.client, r.registry, agent.Config{MaxTurns: choice.MaxTurns}, r.logger)
	if r.store != nil && taskRow != nil {
		ag = ag.WithMemory(memory.NewManager(r.store, taskRow.ID, r.logger))
	}

	actx := agent.NewContext().
		WithSystemPrompt(opts.SystemPrompt).
		WithHistory(history).
		WithUserMessage(task.Text)

	resp, err := ag.Run(ctx, actx)
	if err != nil {
		return nil, err
	}
	if !resp.HitTurnLimit {
		return resp, nil
	}

	// One continuation call to wrap up the partial result.
	r.logger.Info("task hit turn limit, issuing continuation", "task", task.Index, "turns", resp.TurnsUsed)
	actx.WithUserMessage(fmt.Sprintf(continuationPrompt, resp.Text))
	cont, err := ag.Run(ctx, actx)
	if err != nil {
		return resp, nil // keep the partial result rather than fail the task
	}
	cont.TurnsUsed += resp.TurnsUsed
	cont.InputTokens += resp.InputTokens
	cont.OutputTokens += resp.OutputTokens
	if cont.Text == "" {
		cont.Text = resp.Text
	}
	return cont, nil
}

func (r *Router) bindChoice(choice ModelChoice) {
	if choice.Primary {
		r.client.RestoreDefaults()
		return
	}
	r.client.SwitchProvider(choice.Family, choice.BaseURL, choice.Model)
	if choice.APIKey != "" {
		r.client.UpdateAPIKey(choice.APIKey)
	}
}

// sessionHistoryLimit bounds how much stored history re-enters the prompt;
// compaction keeps the tail meaningful beyond that window.
const sessionHistoryLimit = 20

// sessionHistory ensures the session row exists and returns its recent turns
// as prompt history. Tool traffic is stored per task, not replayed here.
func (r *Router) sessionHistory(ctx context.Context, sessionID string) []llm.Message {
	if r.store == nil || sessionID == "" {
		return nil
	}
	if err := r.store.EnsureSession(ctx, sessionID, sessionID, r.client.Model()); err != nil {
		r.logger.Warn("session ensure failed", "session", sessionID, "error", err)
		return nil
	}
	msgs, err := r.store.RecentMessages(ctx, sessionID, sessionHistoryLimit)
	if err != nil {
		r.logger.Warn("session history load failed", "session", sessionID, "error", err)
		return nil
	}
	var out []llm.Message
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case "assistant":
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		case "system":
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.Content})
		}
	}
	return out
}

func (r *Router) recordUserTurn(ctx context.Context, sessionID, content string) {
	if r.store == nil || sessionID == "" {
		return
	}
	// Real usage is only known after the run; 4 bytes per token keeps the
	// compaction counter in the right range.
	tokens := len(content) / 4
	if _, err := r.store.AppendMessage(ctx, sessionID, store.SessionMessage{Role: "user", Content: content}, tokens); err != nil {
		r.logger.Warn("session append failed", "session", sessionID, "error", err)
	}
}

func (r *Router) recordAssistantTurn(ctx context.Context, sessionID string, outcome TaskOutcome) {
	if r.store == nil || sessionID == "" || outcome.Err != nil || outcome.Text == "" {
		return
	}
	if _, err := r.store.AppendMessage(ctx, sessionID, store.SessionMessage{Role: "assistant", Content: outcome.Text}, outcome.OutputTokens); err != nil {
		r.logger.Warn("session append failed", "session", sessionID, "error", err)
	}
}

func (r *Router) createTaskRow(ctx context.Context, sessionID, intent string) *store.Task {
	if r.store == nil {
		return nil
	}
	row, err := r.store.CreateTask(ctx, sessionID, intent)
	if err != nil {
		r.logger.Warn("task row create failed", "error", err)
		return nil
	}
	if err := r.store.SetTaskStatus(ctx, row.ID, store.TaskRunning); err != nil {
		r.logger.Warn("task row update failed", "error", err)
	}
	return row
}

func (r *Router) finishTaskRow(ctx context.Context, row *store.Task, status store.TaskStatus) {
	if r.store == nil || row == nil {
		return
	}
	if err := r.store.SetTaskStatus(ctx, row.ID, status); err != nil {
		r.logger.Warn("task row update failed", "error", err)
	}
}

func (r *Router) publishOutcome(outcome TaskOutcome) {
	if r.bus == nil {
		return
	}
	event := bus.RouterTaskEvent{
		TaskIndex: outcome.Index,
		Tier:      string(outcome.Tier),
		Model:     outcome.Model,
		Text:      outcome.Text,
	}
	if outcome.Err != nil {
		event.Err = outcome.Err.Error()
	}
	r.bus.Publish(bus.TopicRouterTaskCompleted, event)
}

// emitChunked splits text into rune-safe chunks under the outbound limit.
func emitChunked(emit Emitter, text string) {
	if text == "" {
		return
	}
	runes := []rune(text)
	for len(runes) > maxChunkChars {
		emit(string(runes[:maxChunkChars]))
		runes = runes[maxChunkChars:]
	}
	if len(runes) > 0 {
		emit(string(runes))
	}
}

// Summarize is re-exported for transports that want a short preview of long
// output without re-splitting it themselves.
func Summarize(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
