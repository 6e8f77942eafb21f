package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DevTaskStatus tracks the self-development pipeline stage.
type DevTaskStatus string

const (
	DevPending        DevTaskStatus = "pending"
	DevBranching      DevTaskStatus = "branching"
	DevCoding         DevTaskStatus = "coding"
	DevTesting        DevTaskStatus = "testing"
	DevPrCreated      DevTaskStatus = "pr_created"
	DevAwaitingReview DevTaskStatus = "awaiting_review"
	DevCompleted      DevTaskStatus = "completed"
	DevFailed         DevTaskStatus = "failed"
)

// devTransitions is the legal stage graph. Failed is reachable from any
// non-terminal stage (cancel, gate exhaustion) and is handled separately.
var devTransitions = map[DevTaskStatus]map[DevTaskStatus]struct{}{
	DevPending:        {DevBranching: {}, DevCoding: {}, DevCompleted: {}},
	DevBranching:      {DevCoding: {}},
	DevCoding:         {DevTesting: {}, DevCompleted: {}},
	DevTesting:        {DevCoding: {}, DevPrCreated: {}},
	DevPrCreated:      {DevAwaitingReview: {}},
	DevAwaitingReview: {DevCompleted: {}},
}

func devTerminal(s DevTaskStatus) bool {
	return s == DevCompleted || s == DevFailed
}

// DevTask is a persisted self-development job.
type DevTask struct {
	ID          string
	Intent      string
	Status      DevTaskStatus
	Branch      string
	PrURL       string
	ChatID      int64
	RetryCount  int
	MaxRetries  int
	Error       string
	ProgressLog string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DevTaskMessage is one conversation entry scoped to a dev task. Messages
// survive restarts so a recovered task keeps its context, and user rows
// arriving mid-task are injected into the next coding prompt.
type DevTaskMessage struct {
	ID        int64
	TaskID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

const devTaskColumns = `id, intent, status, COALESCE(branch, ''), COALESCE(pr_url, ''),
	COALESCE(chat_id, 0), retry_count, max_retries, COALESCE(error, ''), progress_log, created_at, updated_at`

// CreateDevTask enqueues a new pending dev task. chatID of 0 means no
// operator chat is attached.
func (s *Store) CreateDevTask(ctx context.Context, intent string, chatID int64, maxRetries int) (*DevTask, error) {
	if intent == "" {
		return nil, fmt.Errorf("%w: dev task intent is empty", ErrInvalidArgument)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	now := nowMilli()
	t := &DevTask{
		ID:         uuid.NewString(),
		Intent:     intent,
		Status:     DevPending,
		ChatID:     chatID,
		MaxRetries: maxRetries,
		CreatedAt:  milliTime(now),
		UpdatedAt:  milliTime(now),
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO dev_tasks (id, intent, status, chat_id, retry_count, max_retries, progress_log, created_at, updated_at)
			 VALUES (?, ?, ?, NULLIF(?, 0), 0, ?, '', ?, ?)`,
			t.ID, t.Intent, string(t.Status), t.ChatID, t.MaxRetries, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create dev task: %w", err)
	}
	return t, nil
}

// GetDevTask fetches one dev task.
func (s *Store) GetDevTask(ctx context.Context, id string) (*DevTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+devTaskColumns+` FROM dev_tasks WHERE id = ?`, id)
	t, err := scanDevTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dev task %s: %w", id, ErrNotFound)
	}
	return t, err
}

func scanDevTask(row *sql.Row) (*DevTask, error) {
	var t DevTask
	var status string
	var created, updated int64
	err := row.Scan(&t.ID, &t.Intent, &status, &t.Branch, &t.PrURL, &t.ChatID,
		&t.RetryCount, &t.MaxRetries, &t.Error, &t.ProgressLog, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Status = DevTaskStatus(status)
	t.CreatedAt = milliTime(created)
	t.UpdatedAt = milliTime(updated)
	return &t, nil
}

// ClaimPendingDevTask returns the oldest pending task, or nil when the queue
// is empty. The caller transitions it out of pending before doing work.
func (s *Store) ClaimPendingDevTask(ctx context.Context) (*DevTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+devTaskColumns+` FROM dev_tasks WHERE status = 'pending'
		 ORDER BY created_at, id LIMIT 1`)
	t, err := scanDevTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim dev task: %w", err)
	}
	return t, nil
}

// ListRecoverableDevTasks returns tasks that were mid-pipeline when the
// process last stopped, oldest first.
func (s *Store) ListRecoverableDevTasks(ctx context.Context) ([]DevTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+devTaskColumns+` FROM dev_tasks
		 WHERE status IN ('branching','coding','testing','pr_created')
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list recoverable dev tasks: %w", err)
	}
	defer rows.Close()

	var out []DevTask
	for rows.Next() {
		var t DevTask
		var status string
		var created, updated int64
		if err := rows.Scan(&t.ID, &t.Intent, &status, &t.Branch, &t.PrURL, &t.ChatID,
			&t.RetryCount, &t.MaxRetries, &t.Error, &t.ProgressLog, &created, &updated); err != nil {
			return nil, err
		}
		t.Status = DevTaskStatus(status)
		t.CreatedAt = milliTime(created)
		t.UpdatedAt = milliTime(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransitionDevTask moves a task to a new stage and appends a progress-log
// line. Illegal transitions are rejected; moving to Failed is always legal
// from a non-terminal stage.
func (s *Store) TransitionDevTask(ctx context.Context, id string, to DevTaskStatus, progressNote string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT status FROM dev_tasks WHERE id = ?`, id).Scan(&cur)
		if err == sql.ErrNoRows {
			return fmt.Errorf("dev task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read dev task status: %w", err)
		}
		from := DevTaskStatus(cur)
		if to == DevFailed {
			if devTerminal(from) {
				return fmt.Errorf("%w: dev task %s already %s", ErrInvalidArgument, id, from)
			}
		} else if _, ok := devTransitions[from][to]; !ok {
			return fmt.Errorf("%w: dev task transition %s -> %s", ErrInvalidArgument, from, to)
		}

		now := nowMilli()
		line := fmt.Sprintf("[%s] %s -> %s", milliTime(now).Format(time.RFC3339), from, to)
		if progressNote != "" {
			line += ": " + progressNote
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE dev_tasks SET status = ?, progress_log = progress_log || ? || char(10), updated_at = ?
			 WHERE id = ?`, string(to), line, now, id)
		if err != nil {
			return fmt.Errorf("transition dev task: %w", err)
		}
		return nil
	})
}

// SetDevTaskBranch records the feature branch of a task.
func (s *Store) SetDevTaskBranch(ctx context.Context, id, branch string) error {
	return s.updateDevTaskField(ctx, id, `UPDATE dev_tasks SET branch = ?, updated_at = ? WHERE id = ?`, branch)
}

// SetDevTaskPrURL records the opened pull request URL.
func (s *Store) SetDevTaskPrURL(ctx context.Context, id, prURL string) error {
	return s.updateDevTaskField(ctx, id, `UPDATE dev_tasks SET pr_url = ?, updated_at = ? WHERE id = ?`, prURL)
}

// RecordDevTaskError stores the latest failure text and bumps the retry
// counter. Returns the new retry count.
func (s *Store) RecordDevTaskError(ctx context.Context, id, errText string) (int, error) {
	var retries int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE dev_tasks SET error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
			errText, nowMilli(), id)
		if err != nil {
			return fmt.Errorf("record dev task error: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("dev task %s: %w", id, ErrNotFound)
		}
		return tx.QueryRowContext(ctx, `SELECT retry_count FROM dev_tasks WHERE id = ?`, id).Scan(&retries)
	})
	return retries, err
}

func (s *Store) updateDevTaskField(ctx context.Context, id, stmt string, value any) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, stmt, value, nowMilli(), id)
		if err != nil {
			return fmt.Errorf("update dev task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("dev task %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// AppendDevTaskMessage stores a conversation entry for a task.
func (s *Store) AppendDevTaskMessage(ctx context.Context, taskID, role, content string) error {
	if !validMessageRole(role) {
		return fmt.Errorf("%w: bad message role %q", ErrInvalidArgument, role)
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO dev_task_messages (task_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			taskID, role, content, nowMilli())
		if err != nil {
			return fmt.Errorf("append dev task message: %w", err)
		}
		return nil
	})
}

// ListDevTaskMessages returns a task's messages in insertion order.
func (s *Store) ListDevTaskMessages(ctx context.Context, taskID string) ([]DevTaskMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, role, content, created_at FROM dev_task_messages
		 WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list dev task messages: %w", err)
	}
	defer rows.Close()

	var out []DevTaskMessage
	for rows.Next() {
		var m DevTaskMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.TaskID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = milliTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PendingUserMessages returns user messages that arrived after the last
// non-user message of a task; these are injected into the next coding prompt.
func (s *Store) PendingUserMessages(ctx context.Context, taskID string) ([]DevTaskMessage, error) {
	msgs, err := s.ListDevTaskMessages(ctx, taskID)
	if err != nil {
		return nil, err
	}
	lastNonUser := -1
	for i, m := range msgs {
		if m.Role != "user" {
			lastNonUser = i
		}
	}
	var out []DevTaskMessage
	for _, m := range msgs[lastNonUser+1:] {
		if m.Role == "user" {
			out = append(out, m)
		}
	}
	return out, nil
}
