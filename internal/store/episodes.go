package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EpisodeKind labels what a task-scoped memory entry records.
type EpisodeKind string

const (
	EpisodeObservation EpisodeKind = "observation"
	EpisodeAction      EpisodeKind = "action"
	EpisodeResult      EpisodeKind = "result"
	EpisodeReflection  EpisodeKind = "reflection"
)

func validEpisodeKind(k EpisodeKind) bool {
	switch k {
	case EpisodeObservation, EpisodeAction, EpisodeResult, EpisodeReflection:
		return true
	}
	return false
}

// Episode is one time-ordered entry of a task's episodic memory. Content is
// JSON text. Rows cascade when their task is deleted.
type Episode struct {
	ID        int64
	TaskID    string
	Kind      EpisodeKind
	Content   string
	Timestamp time.Time
}

// InsertEpisode appends an episode for a task. The task must exist (FK).
func (s *Store) InsertEpisode(ctx context.Context, taskID string, kind EpisodeKind, content string) (int64, error) {
	if !validEpisodeKind(kind) {
		return 0, fmt.Errorf("%w: bad episode kind %q", ErrInvalidArgument, kind)
	}
	var id int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO episodes (task_id, kind, content, timestamp) VALUES (?, ?, ?, ?)`,
			taskID, string(kind), content, nowMilli())
		if err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetEpisode fetches one episode by id.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, kind, content, timestamp FROM episodes WHERE id = ?`, id)
	var e Episode
	var kind string
	var ts int64
	err := row.Scan(&e.ID, &e.TaskID, &kind, &e.Content, &ts)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	e.Kind = EpisodeKind(kind)
	e.Timestamp = milliTime(ts)
	return &e, nil
}

// ListEpisodesByTask returns a task's episodes ordered by timestamp ascending.
func (s *Store) ListEpisodesByTask(ctx context.Context, taskID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, kind, content, timestamp FROM episodes
		 WHERE task_id = ? ORDER BY timestamp, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		var kind string
		var ts int64
		if err := rows.Scan(&e.ID, &e.TaskID, &kind, &e.Content, &ts); err != nil {
			return nil, err
		}
		e.Kind = EpisodeKind(kind)
		e.Timestamp = milliTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEpisodesByTask removes all episodes of one task. Returns rows removed.
func (s *Store) DeleteEpisodesByTask(ctx context.Context, taskID string) (int64, error) {
	var n int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE task_id = ?`, taskID)
		if err != nil {
			return fmt.Errorf("delete episodes: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// DeleteEpisodesBefore removes episodes older than the cutoff, across all
// tasks. Used by the retention sweeper.
func (s *Store) DeleteEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE timestamp < ?`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("delete old episodes: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}
