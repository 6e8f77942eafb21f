package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemoryCategory partitions the semantic store.
type MemoryCategory string

const (
	MemoryPreference MemoryCategory = "preference"
	MemoryKnowledge  MemoryCategory = "knowledge"
	MemoryPattern    MemoryCategory = "pattern"
	MemorySkill      MemoryCategory = "skill"
)

func validMemoryCategory(c MemoryCategory) bool {
	switch c {
	case MemoryPreference, MemoryKnowledge, MemoryPattern, MemorySkill:
		return true
	}
	return false
}

// Memory is a permanent semantic record. Embedding, when present, is a packed
// little-endian float32 vector; see the memory package for the codec.
// Importance is the primary ranking key; AccessCount increments on every Get.
type Memory struct {
	ID          string
	Category    MemoryCategory
	Content     string
	Embedding   []byte
	Importance  float64
	AccessCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InsertMemory stores a new semantic memory and returns its id.
func (s *Store) InsertMemory(ctx context.Context, category MemoryCategory, content string, embedding []byte, importance float64) (string, error) {
	if !validMemoryCategory(category) {
		return "", fmt.Errorf("%w: bad memory category %q", ErrInvalidArgument, category)
	}
	if content == "" {
		return "", fmt.Errorf("%w: memory content is empty", ErrInvalidArgument)
	}
	id := uuid.NewString()
	now := nowMilli()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO memories (id, category, content, embedding, importance, access_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			id, string(category), content, embedding, importance, now, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// GetMemory fetches a memory and atomically bumps its access count. The
// returned record reflects the bumped count.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	var m *Memory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, updated_at = ? WHERE id = ?`,
			nowMilli(), id)
		if err != nil {
			return fmt.Errorf("bump access count: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("memory %s: %w", id, ErrNotFound)
		}
		row := tx.QueryRowContext(ctx,
			`SELECT id, category, content, embedding, importance, access_count, created_at, updated_at
			 FROM memories WHERE id = ?`, id)
		m, err = scanMemoryRow(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMemoryRow(row *sql.Row) (*Memory, error) {
	var m Memory
	var category string
	var created, updated int64
	err := row.Scan(&m.ID, &category, &m.Content, &m.Embedding, &m.Importance, &m.AccessCount, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.Category = MemoryCategory(category)
	m.CreatedAt = milliTime(created)
	m.UpdatedAt = milliTime(updated)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		var category string
		var created, updated int64
		if err := rows.Scan(&m.ID, &category, &m.Content, &m.Embedding, &m.Importance, &m.AccessCount, &created, &updated); err != nil {
			return nil, err
		}
		m.Category = MemoryCategory(category)
		m.CreatedAt = milliTime(created)
		m.UpdatedAt = milliTime(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

const memoryColumns = `id, category, content, embedding, importance, access_count, created_at, updated_at`

// ListMemoriesByCategory returns up to limit memories of one category,
// most important first.
func (s *Store) ListMemoriesByCategory(ctx context.Context, category MemoryCategory, limit int) ([]Memory, error) {
	if !validMemoryCategory(category) {
		return nil, fmt.Errorf("%w: bad memory category %q", ErrInvalidArgument, category)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE category = ?
		 ORDER BY importance DESC, updated_at DESC LIMIT ?`, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListAllMemories returns memories of every category, or of one when category
// is non-empty, most important first.
func (s *Store) ListAllMemories(ctx context.Context, category MemoryCategory) ([]Memory, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+memoryColumns+` FROM memories WHERE category = ?
			 ORDER BY importance DESC, updated_at DESC`, string(category))
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+memoryColumns+` FROM memories ORDER BY importance DESC, updated_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list all memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// CountMemories counts memories, optionally filtered by category.
func (s *Store) CountMemories(ctx context.Context, category MemoryCategory) (int64, error) {
	var n int64
	var err error
	if category != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE category = ?`, string(category)).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// SearchMemoriesByKeyword does a case-insensitive substring match on content,
// optionally within one category, most important first.
func (s *Store) SearchMemoriesByKeyword(ctx context.Context, keyword string, category MemoryCategory, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(keyword) + "%"
	var (
		rows *sql.Rows
		err  error
	)
	if category != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+memoryColumns+` FROM memories
			 WHERE category = ? AND content LIKE ? ESCAPE '\'
			 ORDER BY importance DESC, updated_at DESC LIMIT ?`,
			string(category), pattern, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+memoryColumns+` FROM memories
			 WHERE content LIKE ? ESCAPE '\'
			 ORDER BY importance DESC, updated_at DESC LIMIT ?`,
			pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// UpdateMemoryEmbedding replaces a memory's embedding blob.
func (s *Store) UpdateMemoryEmbedding(ctx context.Context, id string, embedding []byte) error {
	return s.updateMemoryField(ctx, id,
		`UPDATE memories SET embedding = ?, updated_at = ? WHERE id = ?`, embedding)
}

// UpdateMemoryImportance replaces a memory's ranking score.
func (s *Store) UpdateMemoryImportance(ctx context.Context, id string, importance float64) error {
	return s.updateMemoryField(ctx, id,
		`UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?`, importance)
}

func (s *Store) updateMemoryField(ctx context.Context, id, stmt string, value any) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, stmt, value, nowMilli(), id)
		if err != nil {
			return fmt.Errorf("update memory: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("memory %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// DeleteMemory removes one memory.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("memory %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
