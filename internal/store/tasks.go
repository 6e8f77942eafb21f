package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus tracks a routed task's lifecycle.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is the anchor row episodes hang off. One task per routed sub-intent.
type Task struct {
	ID        string
	SessionID string
	Intent    string
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateTask inserts a queued task. sessionID may be empty.
func (s *Store) CreateTask(ctx context.Context, sessionID, intent string) (*Task, error) {
	if intent == "" {
		return nil, fmt.Errorf("%w: task intent is empty", ErrInvalidArgument)
	}
	now := nowMilli()
	t := &Task{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Intent:    intent,
		Status:    TaskQueued,
		CreatedAt: milliTime(now),
		UpdatedAt: milliTime(now),
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tasks (id, session_id, intent, status, created_at, updated_at)
			 VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)`,
			t.ID, t.SessionID, t.Intent, string(t.Status), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// GetTask fetches a task row.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(session_id, ''), intent, status, created_at, updated_at FROM tasks WHERE id = ?`, id)
	var t Task
	var status string
	var created, updated int64
	err := row.Scan(&t.ID, &t.SessionID, &t.Intent, &status, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Status = TaskStatus(status)
	t.CreatedAt = milliTime(created)
	t.UpdatedAt = milliTime(updated)
	return &t, nil
}

// SetTaskStatus moves a task to a new status.
func (s *Store) SetTaskStatus(ctx context.Context, id string, status TaskStatus) error {
	switch status {
	case TaskQueued, TaskRunning, TaskCompleted, TaskFailed:
	default:
		return fmt.Errorf("%w: bad task status %q", ErrInvalidArgument, status)
	}
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), nowMilli(), id)
		if err != nil {
			return fmt.Errorf("set task status: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// DeleteTask removes a task and, via cascade, its episodes.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
