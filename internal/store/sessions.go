package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a persistent conversation thread.
type Session struct {
	ID           string
	Name         string
	Model        string
	MessageCount int
	TokenCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionMessage is one entry in a session's conversation log. ToolCalls holds
// the serialized tool-call list of an assistant message, ToolCallID links a
// tool_result back to the call that produced it.
type SessionMessage struct {
	ID         int64
	SessionID  string
	Role       string
	Content    string
	ToolCalls  string
	ToolCallID string
	CreatedAt  time.Time
}

func validMessageRole(role string) bool {
	switch role {
	case "system", "user", "assistant", "tool_result":
		return true
	}
	return false
}

// newSessionID returns a time-ordered UUID so session listings sort by
// creation without a secondary key.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreateSession inserts a new session and returns it.
func (s *Store) CreateSession(ctx context.Context, name, model string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: session name is empty", ErrInvalidArgument)
	}
	now := nowMilli()
	sess := &Session{
		ID:        newSessionID(),
		Name:      name,
		Model:     model,
		CreatedAt: milliTime(now),
		UpdatedAt: milliTime(now),
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, name, model, message_count, token_count, created_at, updated_at)
			 VALUES (?, ?, ?, 0, 0, ?, ?)`,
			sess.ID, sess.Name, sess.Model, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// EnsureSession inserts a session under a caller-chosen id unless it already
// exists. Channels use it to keep one stable session per external user.
func (s *Store) EnsureSession(ctx context.Context, id, name, model string) error {
	if id == "" || name == "" {
		return fmt.Errorf("%w: session id and name are required", ErrInvalidArgument)
	}
	now := nowMilli()
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, name, model, message_count, token_count, created_at, updated_at)
			 VALUES (?, ?, ?, 0, 0, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			id, name, model, now, now)
		if err != nil {
			return fmt.Errorf("ensure session: %w", err)
		}
		return nil
	})
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, model, message_count, token_count, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	var sess Session
	var created, updated int64
	err := row.Scan(&sess.ID, &sess.Name, &sess.Model, &sess.MessageCount, &sess.TokenCount, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = milliTime(created)
	sess.UpdatedAt = milliTime(updated)
	return &sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model, message_count, token_count, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.Model, &sess.MessageCount, &sess.TokenCount, &created, &updated); err != nil {
			return nil, err
		}
		sess.CreatedAt = milliTime(created)
		sess.UpdatedAt = milliTime(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via FK cascade, its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// AppendMessage appends a message to a session, bumps message_count and
// accumulates tokens, in one transaction.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg SessionMessage, tokens int) (int64, error) {
	if !validMessageRole(msg.Role) {
		return 0, fmt.Errorf("%w: bad message role %q", ErrInvalidArgument, msg.Role)
	}
	now := nowMilli()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, role, content, tool_calls, tool_call_id, created_at)
			 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
			sessionID, msg.Role, msg.Content, msg.ToolCalls, msg.ToolCallID, now)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE sessions SET message_count = message_count + 1, token_count = token_count + ?, updated_at = ?
			 WHERE id = ?`, tokens, now, sessionID)
		if err != nil {
			return fmt.Errorf("bump session counters: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RecentMessages returns the last limit messages of a session in chronological
// order. limit <= 0 returns everything.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]SessionMessage, error) {
	query := `SELECT id, session_id, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), created_at
		FROM session_messages WHERE session_id = ? ORDER BY created_at, id`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		// Subquery picks the tail; outer query restores chronological order.
		query = `SELECT id, session_id, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), created_at FROM (
			SELECT id, session_id, role, content, tool_calls, tool_call_id, created_at
			FROM session_messages WHERE session_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at, id`
		rows, err = s.db.QueryContext(ctx, query, sessionID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanSessionMessages(rows)
}

func scanSessionMessages(rows *sql.Rows) ([]SessionMessage, error) {
	var out []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = milliTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CompactSession replaces all but the most recent keepRecent messages of a
// session with a single system summary message. The summary is timestamped
// just before the earliest surviving message so chronological reads stay
// correct, and message_count is recomputed from the table.
func (s *Store) CompactSession(ctx context.Context, sessionID string, keepRecent int, summary string) error {
	if keepRecent < 0 {
		return fmt.Errorf("%w: keepRecent is negative", ErrInvalidArgument)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Cutoff is the smallest row id among the keepRecent newest messages.
		var cutoff sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MIN(id) FROM (
				SELECT id FROM session_messages WHERE session_id = ?
				ORDER BY created_at DESC, id DESC LIMIT ?
			)`, sessionID, keepRecent).Scan(&cutoff)
		if err != nil {
			return fmt.Errorf("compaction cutoff: %w", err)
		}

		if cutoff.Valid {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM session_messages WHERE session_id = ? AND id < ?`,
				sessionID, cutoff.Int64); err != nil {
				return fmt.Errorf("delete compacted messages: %w", err)
			}
		} else {
			// keepRecent == 0 or no messages at all: everything goes.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
				return fmt.Errorf("delete compacted messages: %w", err)
			}
		}

		var earliest sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MIN(created_at) FROM session_messages WHERE session_id = ?`,
			sessionID).Scan(&earliest); err != nil {
			return fmt.Errorf("earliest remaining: %w", err)
		}
		summaryAt := nowMilli()
		if earliest.Valid {
			summaryAt = earliest.Int64 - 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, role, content, created_at) VALUES (?, 'system', ?, ?)`,
			sessionID, summary, summaryAt); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET
				message_count = (SELECT COUNT(*) FROM session_messages WHERE session_id = ?),
				updated_at = ?
			 WHERE id = ?`, sessionID, nowMilli(), sessionID)
		if err != nil {
			return fmt.Errorf("recompute message_count: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil
	})
}
