package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openintentos/openintent/internal/store"
)

// Manager is the agent-facing surface over the three layers. One Manager is
// bound to one task; Working is private to it, episodic rows are scoped by
// the task id, and semantic operations hit the shared permanent table.
type Manager struct {
	store   *store.Store
	taskID  string
	working *Working
	logger  *slog.Logger
}

func NewManager(s *store.Store, taskID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   s,
		taskID:  taskID,
		working: NewWorking(),
		logger:  logger,
	}
}

// Working returns the task-scoped scratch layer.
func (m *Manager) Working() *Working {
	return m.working
}

// TaskID returns the task this manager records episodes under.
func (m *Manager) TaskID() string {
	return m.taskID
}

// Remember appends an episode for the current task. content is marshaled to
// JSON text.
func (m *Manager) Remember(ctx context.Context, kind store.EpisodeKind, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode episode content: %w", err)
	}
	_, err = m.store.InsertEpisode(ctx, m.taskID, kind, string(raw))
	return err
}

// Timeline returns the current task's episodes, oldest first.
func (m *Manager) Timeline(ctx context.Context) ([]store.Episode, error) {
	return m.store.ListEpisodesByTask(ctx, m.taskID)
}

// Recall searches the semantic layer by keyword. An empty category searches
// all categories.
func (m *Manager) Recall(ctx context.Context, keyword string, category store.MemoryCategory, limit int) ([]store.Memory, error) {
	return m.store.SearchMemoriesByKeyword(ctx, keyword, category, limit)
}

// Save writes a permanent semantic memory directly.
func (m *Manager) Save(ctx context.Context, category store.MemoryCategory, content string, importance float64) (string, error) {
	return m.store.InsertMemory(ctx, category, content, nil, importance)
}

// Promote lifts one episode into the permanent semantic layer with the given
// category and importance, keeping the episode in place.
func (m *Manager) Promote(ctx context.Context, episodeID int64, category store.MemoryCategory, importance float64) (string, error) {
	ep, err := m.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return "", err
	}
	id, err := m.store.InsertMemory(ctx, category, ep.Content, nil, importance)
	if err != nil {
		return "", err
	}
	m.logger.Debug("episode promoted to semantic memory", "episode", episodeID, "memory", id, "category", category)
	return id, nil
}
