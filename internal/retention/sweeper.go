// Package retention prunes aged data on a cron schedule: episodic records
// past their TTL are deleted, and sessions grown past the compaction
// threshold are folded into a summary plus their recent tail.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/openintentos/openintent/internal/store"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Summarizer condenses a slice of session messages into one summary string.
// The sweeper calls it with everything about to be compacted away.
type Summarizer func(ctx context.Context, messages []store.SessionMessage) (string, error)

// Config holds sweep policy. Zero values take defaults.
type Config struct {
	Schedule         string        // cron expression; default "0 3 * * *"
	EpisodeTTL       time.Duration // default 30 days
	CompactThreshold int           // compact sessions above this many messages; default 100
	KeepRecent       int           // messages kept verbatim after compaction; default 20
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "0 3 * * *"
	}
	if c.EpisodeTTL <= 0 {
		c.EpisodeTTL = 30 * 24 * time.Hour
	}
	if c.CompactThreshold <= 0 {
		c.CompactThreshold = 100
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 20
	}
	return c
}

// Sweeper runs retention sweeps in the background.
type Sweeper struct {
	store     *store.Store
	summarize Summarizer
	cfg       Config
	logger    *slog.Logger
	schedule  cronlib.Schedule
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSweeper validates the schedule and builds a sweeper. summarize may be
// nil, in which case compaction falls back to a plain-text digest.
func NewSweeper(st *store.Store, summarize Summarizer, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", cfg.Schedule, err)
	}
	return &Sweeper{
		store:     st,
		summarize: summarize,
		cfg:       cfg,
		logger:    logger,
		schedule:  sched,
	}, nil
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("retention sweeper started", "schedule", s.cfg.Schedule, "episode_ttl", s.cfg.EpisodeTTL)
}

// Stop cancels the loop and waits for any in-flight sweep.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := s.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full retention pass. It is safe to call directly, e.g. from
// an admin trigger.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.EpisodeTTL)
	deleted, err := s.store.DeleteEpisodesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: episode sweep failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("retention: episodes pruned", "deleted", deleted, "cutoff", cutoff)
	}

	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		s.logger.Error("retention: session list failed", "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.MessageCount <= s.cfg.CompactThreshold {
			continue
		}
		if err := s.compactSession(ctx, sess.ID); err != nil {
			s.logger.Error("retention: session compaction failed", "session", sess.ID, "error", err)
			continue
		}
		s.logger.Info("retention: session compacted", "session", sess.ID, "kept", s.cfg.KeepRecent)
	}
}

// compactSession summarizes everything older than the recent tail and folds
// it into a single summary message.
func (s *Sweeper) compactSession(ctx context.Context, sessionID string) error {
	messages, err := s.store.RecentMessages(ctx, sessionID, s.cfg.CompactThreshold*2)
	if err != nil {
		return err
	}
	if len(messages) <= s.cfg.KeepRecent {
		return nil
	}
	older := messages[:len(messages)-s.cfg.KeepRecent]

	summary, err := s.summarizeMessages(ctx, older)
	if err != nil {
		return err
	}
	return s.store.CompactSession(ctx, sessionID, s.cfg.KeepRecent, summary)
}

func (s *Sweeper) summarizeMessages(ctx context.Context, messages []store.SessionMessage) (string, error) {
	if s.summarize != nil {
		return s.summarize(ctx, messages)
	}
	return digest(messages), nil
}

// digest is the fallback summary: a bounded plain-text recap of the
// conversation being folded away.
func digest(messages []store.SessionMessage) string {
	var b strings.Builder
	b.WriteString("Conversation summary (auto-compacted):\n")
	for _, m := range messages {
		line := m.Content
		if runes := []rune(line); len(runes) > 120 {
			line = string(runes[:120]) + "..."
		}
		fmt.Fprintf(&b, "- %s: %s\n", m.Role, line)
		if b.Len() > 4000 {
			b.WriteString("- ...\n")
			break
		}
	}
	return b.String()
}

// NextRunTime parses the cron expression and returns the next run after the
// given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
