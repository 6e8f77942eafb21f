package devworker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openintentos/openintent/internal/store"
)

// HandleCommand processes operator commands addressed to the dev worker.
// Supported: "/merge <task-id>" and "/cancel <task-id>". The returned string
// is the reply for the originating channel.
func (w *Worker) HandleCommand(ctx context.Context, text string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", fmt.Errorf("usage: /merge <task-id> or /cancel <task-id>")
	}
	cmd, taskID := fields[0], fields[1]

	task, err := w.store.GetDevTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("look up task %s: %w", taskID, err)
	}

	switch cmd {
	case "/merge":
		return w.merge(ctx, task)
	case "/cancel":
		return w.cancelTask(ctx, task)
	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

// merge merges the task's pull request and completes the task. Only tasks
// awaiting review can be merged.
func (w *Worker) merge(ctx context.Context, t *store.DevTask) (string, error) {
	if t.Status != store.DevAwaitingReview {
		return "", fmt.Errorf("task %s is %s, not awaiting review", t.ID, t.Status)
	}
	if t.PrURL == "" {
		return "", fmt.Errorf("task %s has no pull request recorded", t.ID)
	}
	ref, number, err := parsePrURL(t.PrURL)
	if err != nil {
		return "", err
	}
	if _, err := w.registry.Execute(ctx, "merge_pull_request", map[string]any{
		"owner":  ref.Owner,
		"repo":   ref.Name,
		"number": number,
	}); err != nil {
		return "", fmt.Errorf("merge pull request: %w", err)
	}
	if err := w.transition(ctx, t, store.DevCompleted, "merged "+t.PrURL); err != nil {
		return "", err
	}
	return fmt.Sprintf("Merged %s, task %s completed.", t.PrURL, t.ID), nil
}

func (w *Worker) cancelTask(ctx context.Context, t *store.DevTask) (string, error) {
	if err := w.transition(ctx, t, store.DevFailed, "cancelled by user"); err != nil {
		return "", fmt.Errorf("cancel task %s: %w", t.ID, err)
	}
	return fmt.Sprintf("Task %s cancelled.", t.ID), nil
}

// parsePrURL extracts owner, repo, and PR number from a GitHub pull request
// URL such as https://github.com/owner/repo/pull/42.
func parsePrURL(url string) (RepoRef, int, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(url), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 || parts[len(parts)-2] != "pull" {
		return RepoRef{}, 0, fmt.Errorf("unrecognized pull request URL %q", url)
	}
	number, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return RepoRef{}, 0, fmt.Errorf("unrecognized pull request URL %q", url)
	}
	return RepoRef{Owner: parts[len(parts)-4], Name: parts[len(parts)-3]}, number, nil
}
