package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openintentos/openintent/internal/store"
)

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	task, err := st.CreateTask(ctx, "", "summarize the logs")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != store.TaskQueued {
		t.Fatalf("status = %q", task.Status)
	}

	if err := st.SetTaskStatus(ctx, task.ID, store.TaskRunning); err != nil {
		t.Fatalf("set running: %v", err)
	}
	if err := st.SetTaskStatus(ctx, task.ID, store.TaskCompleted); err != nil {
		t.Fatalf("set completed: %v", err)
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.TaskCompleted || got.Intent != "summarize the logs" {
		t.Fatalf("got %+v", got)
	}
}

func TestTaskValidation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.CreateTask(ctx, "", ""); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("empty intent: %v", err)
	}

	task, err := st.CreateTask(ctx, "", "do a thing")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetTaskStatus(ctx, task.ID, store.TaskStatus("paused")); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("bad status: %v", err)
	}
	if err := st.SetTaskStatus(ctx, "missing", store.TaskFailed); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
	if _, err := st.GetTask(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
}

func TestCreateTaskSessionForeignKey(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	// A session id must reference an existing row; empty means unbound.
	if _, err := st.CreateTask(ctx, "telegram-12345", "check the weather"); err == nil {
		t.Fatal("task accepted an unknown session id")
	}

	if err := st.EnsureSession(ctx, "telegram-12345", "telegram-12345", "gpt-4o"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	task, err := st.CreateTask(ctx, "telegram-12345", "check the weather")
	if err != nil {
		t.Fatalf("create after ensure: %v", err)
	}
	if task.SessionID != "telegram-12345" {
		t.Fatalf("got %+v", task)
	}
}

func TestEpisodesOrderedByTime(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task, err := st.CreateTask(ctx, "", "episodic work")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	kinds := []store.EpisodeKind{
		store.EpisodeObservation,
		store.EpisodeAction,
		store.EpisodeResult,
		store.EpisodeReflection,
	}
	for i, k := range kinds {
		content := fmt.Sprintf(`{"step":%d}`, i)
		if _, err := st.InsertEpisode(ctx, task.ID, k, content); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	eps, err := st.ListEpisodesByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eps) != 4 {
		t.Fatalf("len = %d", len(eps))
	}
	for i, e := range eps {
		if e.Kind != kinds[i] {
			t.Errorf("eps[%d].Kind = %q, want %q", i, e.Kind, kinds[i])
		}
	}

	got, err := st.GetEpisode(ctx, eps[0].ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if got.Content != `{"step":0}` {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestInsertEpisodeValidation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task, _ := st.CreateTask(ctx, "", "work")

	if _, err := st.InsertEpisode(ctx, task.ID, store.EpisodeKind("dream"), "{}"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("bad kind: %v", err)
	}
	// episodes.task_id is a foreign key
	if _, err := st.InsertEpisode(ctx, "no-such-task", store.EpisodeAction, "{}"); err == nil {
		t.Fatal("insert for missing task accepted")
	}
}

func TestDeleteTaskCascadesEpisodes(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task, _ := st.CreateTask(ctx, "", "work")
	for i := 0; i < 3; i++ {
		if _, err := st.InsertEpisode(ctx, task.ID, store.EpisodeAction, "{}"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := st.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	eps, err := st.ListEpisodesByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eps) != 0 {
		t.Fatalf("episodes left after task delete: %d", len(eps))
	}

	if err := st.DeleteTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestDeleteEpisodesByTask(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task, _ := st.CreateTask(ctx, "", "work")
	for i := 0; i < 5; i++ {
		if _, err := st.InsertEpisode(ctx, task.ID, store.EpisodeObservation, "{}"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := st.DeleteEpisodesByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 5 {
		t.Fatalf("deleted %d, want 5", n)
	}
}
