// Package devworker runs the self-development pipeline: it takes a stored
// intent, drives the agent to change the repository on a feature branch, runs
// quality gates with feedback-driven retry, and opens a pull request. Stage
// transitions are committed before the side effects they enable, so a restart
// resumes every non-terminal task at its recorded stage.
package devworker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openintentos/openintent/internal/agent"
	"github.com/openintentos/openintent/internal/bus"
	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/store"
	"github.com/openintentos/openintent/internal/tools"
)

// Config holds the worker's repository binding and gate commands.
type Config struct {
	RepoPath   string
	MainBranch string // default "main"

	// Quality gates, run in order; empty commands are skipped.
	FormatCmd string // default: test -z "$(gofmt -l .)"
	LintCmd   string // default: go vet ./...
	TestCmd   string // default: go test ./...

	MaxRetries   int           // default 3; per-task ceiling for gate retries
	PollInterval time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.MainBranch == "" {
		c.MainBranch = "main"
	}
	if c.FormatCmd == "" {
		c.FormatCmd = `test -z "$(gofmt -l .)"`
	}
	if c.LintCmd == "" {
		c.LintCmd = "go vet ./..."
	}
	if c.TestCmd == "" {
		c.TestCmd = "go test ./..."
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	return c
}

// Worker consumes dev tasks from the store, one at a time.
type Worker struct {
	store    *store.Store
	client   *llm.Client
	registry *tools.Registry
	shell    *tools.ShellAdapter
	cfg      Config
	bus      *bus.Bus
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a worker. The shell adapter is bound to the repository path so
// every git and gate command runs there.
func New(st *store.Store, client *llm.Client, registry *tools.Registry, cfg Config, eventBus *bus.Bus, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		store:    st,
		client:   client,
		registry: registry,
		shell:    tools.NewShellAdapter(cfg.RepoPath),
		cfg:      cfg,
		bus:      eventBus,
		logger:   logger,
	}
}

// Submit enqueues a new dev task. chatID of 0 means no operator chat.
func (w *Worker) Submit(ctx context.Context, intent string, chatID int64) (*store.DevTask, error) {
	return w.store.CreateDevTask(ctx, intent, chatID, w.cfg.MaxRetries)
}

// AddUserMessage injects a user instruction into a running task; the next
// coding round picks it up.
func (w *Worker) AddUserMessage(ctx context.Context, taskID, content string) error {
	return w.store.AppendDevTaskMessage(ctx, taskID, "user", content)
}

// Start recovers interrupted tasks and begins the poll loop.
func (w *Worker) Start(ctx context.Context) error {
	recoverable, err := w.store.ListRecoverableDevTasks(ctx)
	if err != nil {
		return fmt.Errorf("recover dev tasks: %w", err)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for _, t := range recoverable {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("resuming dev task", "task", t.ID, "stage", t.Status)
			task := t
			w.process(ctx, &task)
		}
		w.loop(ctx)
	}()
	w.logger.Info("dev worker started", "repo", w.cfg.RepoPath, "poll_interval", w.cfg.PollInterval)
	return nil
}

// Stop cancels the loop and waits for the in-flight task to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, err := w.store.ClaimPendingDevTask(ctx)
			if err != nil {
				w.logger.Warn("dev task claim failed", "error", err)
				continue
			}
			if task == nil {
				continue
			}
			w.process(ctx, task)
		}
	}
}

// process drives one task from its current stage to a terminal state.
func (w *Worker) process(ctx context.Context, t *store.DevTask) {
	ctx, span := otel.Tracer("openintent").Start(ctx, "devworker.task")
	span.SetAttributes(attribute.String("devtask.id", t.ID))
	defer span.End()

	var err error
	switch t.Status {
	case store.DevPending:
		err = w.runFromPending(ctx, t)
	case store.DevBranching:
		err = w.runDevelopment(ctx, t, stageBranch)
	case store.DevCoding:
		err = w.runDevelopment(ctx, t, stageCode)
	case store.DevTesting:
		err = w.runDevelopment(ctx, t, stageTest)
	case store.DevPrCreated:
		err = w.runDevelopment(ctx, t, stagePR)
	default:
		return
	}
	if err != nil {
		w.fail(ctx, t, err)
	}
}

func (w *Worker) runFromPending(ctx context.Context, t *store.DevTask) error {
	kind, err := w.classify(ctx, t.Intent)
	if err != nil {
		return fmt.Errorf("classify intent: %w", err)
	}
	if kind == "simple" {
		return w.runSimple(ctx, t)
	}
	if err := w.transition(ctx, t, store.DevBranching, ""); err != nil {
		return err
	}
	return w.runDevelopment(ctx, t, stageBranch)
}

// classify asks the model for a one-word label; anything that is not clearly
// "simple" goes down the development path.
func (w *Worker) classify(ctx context.Context, intent string) (string, error) {
	resp, err := w.client.Chat(ctx, llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(classifyPrompt, intent)}},
		MaxTokens: 16,
	})
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToLower(resp.Text), "simple") {
		return "simple", nil
	}
	return "development", nil
}

func (w *Worker) runSimple(ctx context.Context, t *store.DevTask) error {
	ag := agent.New(w.client, w.registry, agent.Config{MaxTurns: 10}, w.logger)
	actx := agent.NewContext().
		WithSystemPrompt(simpleSystemPrompt).
		WithUserMessage(t.Intent)
	resp, err := ag.Run(ctx, actx)
	if err != nil {
		return fmt.Errorf("simple path agent: %w", err)
	}
	if err := w.store.AppendDevTaskMessage(ctx, t.ID, "assistant", resp.Text); err != nil {
		return err
	}
	return w.transition(ctx, t, store.DevCompleted, TruncateUTF8(resp.Text, 200))
}

// pipeline stages, in order; a resumed task enters at its recorded stage.
type stage int

const (
	stageBranch stage = iota
	stageCode
	stageTest
	stagePR
)

func (w *Worker) runDevelopment(ctx context.Context, t *store.DevTask, from stage) error {
	if from <= stageBranch {
		if err := w.branch(ctx, t); err != nil {
			return fmt.Errorf("branch stage: %w", err)
		}
		if err := w.transition(ctx, t, store.DevCoding, "branch "+t.Branch); err != nil {
			return err
		}
	}

	if from <= stageTest {
		// Gate loop: code, test, and feed failures back until the gates pass
		// or the retry budget runs out.
		failure := t.Error
		coding := from <= stageCode
		for {
			if coding {
				if err := w.code(ctx, t, failure); err != nil {
					return fmt.Errorf("coding stage: %w", err)
				}
				if err := w.transition(ctx, t, store.DevTesting, ""); err != nil {
					return err
				}
			}
			gateErr := w.runGates(ctx)
			if gateErr == nil {
				break
			}
			failure = gateErr.Error()
			retries, err := w.store.RecordDevTaskError(ctx, t.ID, failure)
			if err != nil {
				return err
			}
			if retries > t.MaxRetries {
				return fmt.Errorf("quality gates failed after %d retries: %s", t.MaxRetries, failure)
			}
			w.logger.Info("gates failed, retrying coding round", "task", t.ID, "retry", retries)
			if err := w.transition(ctx, t, store.DevCoding, fmt.Sprintf("gate retry %d", retries)); err != nil {
				return err
			}
			coding = true
		}
	}

	if from < stagePR {
		if err := w.openPullRequest(ctx, t); err != nil {
			return fmt.Errorf("pr stage: %w", err)
		}
	}
	return w.transition(ctx, t, store.DevAwaitingReview, t.PrURL)
}

// branch checks out main, pulls, and creates the feature branch. A branch
// left behind by an interrupted run is reused.
func (w *Worker) branch(ctx context.Context, t *store.DevTask) error {
	branch := BranchName(t.Intent)
	if _, err := w.shell.Run(ctx, "git checkout "+w.cfg.MainBranch); err != nil {
		return err
	}
	if _, err := w.shell.Run(ctx, "git pull --ff-only"); err != nil {
		w.logger.Warn("git pull failed, continuing with local main", "error", err)
	}
	if _, err := w.shell.Run(ctx, "git checkout -b "+branch); err != nil {
		if _, err2 := w.shell.Run(ctx, "git checkout "+branch); err2 != nil {
			return err
		}
	}
	if err := w.store.SetDevTaskBranch(ctx, t.ID, branch); err != nil {
		return err
	}
	t.Branch = branch
	return nil
}

// code runs one agent round against the repository.
func (w *Worker) code(ctx context.Context, t *store.DevTask, failureText string) error {
	pending, err := w.store.PendingUserMessages(ctx, t.ID)
	if err != nil {
		return err
	}
	prompt := codingPrompt(w.registry, failureText, pending)

	ag := agent.New(w.client, w.registry, agent.Config{MaxTurns: 25}, w.logger)
	actx := agent.NewContext().
		WithSystemPrompt(prompt).
		WithUserMessage(t.Intent)
	resp, err := ag.Run(ctx, actx)
	if err != nil {
		return err
	}
	return w.store.AppendDevTaskMessage(ctx, t.ID, "assistant", resp.Text)
}

// runGates executes format, lint, and test in order; the first failure stops
// the run and its combined output becomes the feedback for the next round.
func (w *Worker) runGates(ctx context.Context) error {
	for _, cmd := range []string{w.cfg.FormatCmd, w.cfg.LintCmd, w.cfg.TestCmd} {
		if cmd == "" {
			continue
		}
		if _, err := w.shell.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) openPullRequest(ctx context.Context, t *store.DevTask) error {
	if _, err := w.shell.Run(ctx, "git add -A"); err != nil {
		return err
	}
	status, err := w.shell.Run(ctx, "git status --porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) != "" {
		if _, err := w.shell.Run(ctx, fmt.Sprintf("git commit -m %q", CommitMessage(t.Intent))); err != nil {
			return err
		}
	}
	if _, err := w.shell.Run(ctx, "git push -u origin "+t.Branch); err != nil {
		return err
	}

	origin, err := w.shell.Run(ctx, "git remote get-url origin")
	if err != nil {
		return err
	}
	ref, err := ParseOriginURL(origin)
	if err != nil {
		return err
	}

	summary, err := w.lastAssistantMessage(ctx, t.ID)
	if err != nil {
		return err
	}
	url, err := w.registry.Execute(ctx, "create_pull_request", map[string]any{
		"owner": ref.Owner,
		"repo":  ref.Name,
		"title": CommitMessage(t.Intent),
		"body":  PullRequestBody(summary, t.Intent, t.ID),
		"head":  t.Branch,
		"base":  w.cfg.MainBranch,
	})
	if err != nil {
		return err
	}
	if err := w.store.SetDevTaskPrURL(ctx, t.ID, url); err != nil {
		return err
	}
	t.PrURL = url
	return w.transition(ctx, t, store.DevPrCreated, url)
}

func (w *Worker) lastAssistantMessage(ctx context.Context, taskID string) (string, error) {
	msgs, err := w.store.ListDevTaskMessages(ctx, taskID)
	if err != nil {
		return "", err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i].Content, nil
		}
	}
	return "", nil
}

// transition commits the stage change, then announces it; the store write
// happens before any side effect the new stage enables.
func (w *Worker) transition(ctx context.Context, t *store.DevTask, to store.DevTaskStatus, note string) error {
	from := t.Status
	if err := w.store.TransitionDevTask(ctx, t.ID, to, note); err != nil {
		return err
	}
	t.Status = to
	w.logger.Info("dev task stage change", "task", t.ID, "from", from, "to", to)
	if w.bus != nil {
		w.bus.Publish(bus.TopicDevTaskStageChanged, bus.DevTaskStageEvent{
			TaskID:    t.ID,
			ChatID:    t.ChatID,
			OldStatus: string(from),
			NewStatus: string(to),
			Detail:    note,
		})
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, t *store.DevTask, cause error) {
	w.logger.Error("dev task failed", "task", t.ID, "error", cause)
	if _, err := w.store.RecordDevTaskError(ctx, t.ID, cause.Error()); err != nil {
		w.logger.Warn("record dev task error failed", "task", t.ID, "error", err)
	}
	if err := w.transition(ctx, t, store.DevFailed, TruncateUTF8(cause.Error(), 500)); err != nil {
		w.logger.Warn("dev task fail transition rejected", "task", t.ID, "error", err)
	}
}
