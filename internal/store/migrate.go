package store

import (
	"context"
	"database/sql"
	"fmt"
)

// A migration is a versioned batch of DDL statements. The checksum is a
// human-maintained ledger string; a mismatch against an applied version means
// the on-disk schema was produced by a different build and startup must stop.
type migration struct {
	version  int
	checksum string
	stmts    []string
}

var migrations = []migration{
	{
		version:  1,
		checksum: "oi-v1-core-tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				model         TEXT NOT NULL DEFAULT '',
				message_count INTEGER NOT NULL DEFAULT 0,
				token_count   INTEGER NOT NULL DEFAULT 0,
				created_at    INTEGER NOT NULL,
				updated_at    INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS session_messages (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role         TEXT NOT NULL CHECK (role IN ('system','user','assistant','tool_result')),
				content      TEXT NOT NULL,
				tool_calls   TEXT,
				tool_call_id TEXT,
				created_at   INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_session_messages_order
				ON session_messages(session_id, created_at, id);`,
			`CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				display_name  TEXT,
				password_hash TEXT NOT NULL,
				role          TEXT NOT NULL CHECK (role IN ('admin','user','viewer')),
				active        INTEGER NOT NULL DEFAULT 1,
				created_at    INTEGER NOT NULL,
				updated_at    INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id         TEXT PRIMARY KEY,
				session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
				intent     TEXT NOT NULL,
				status     TEXT NOT NULL CHECK (status IN ('queued','running','completed','failed')),
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);`,
		},
	},
	{
		version:  2,
		checksum: "oi-v2-memory-tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS episodes (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id   TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				kind      TEXT NOT NULL CHECK (kind IN ('observation','action','result','reflection')),
				content   TEXT NOT NULL,
				timestamp INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_episodes_task ON episodes(task_id, timestamp);`,
			`CREATE TABLE IF NOT EXISTS memories (
				id           TEXT PRIMARY KEY,
				category     TEXT NOT NULL CHECK (category IN ('preference','knowledge','pattern','skill')),
				content      TEXT NOT NULL,
				embedding    BLOB,
				importance   REAL NOT NULL DEFAULT 0,
				access_count INTEGER NOT NULL DEFAULT 0,
				created_at   INTEGER NOT NULL,
				updated_at   INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category, importance DESC);`,
		},
	},
	{
		version:  3,
		checksum: "oi-v3-vault-tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS credentials (
				provider        TEXT PRIMARY KEY,
				credential_type TEXT NOT NULL CHECK (credential_type IN ('oauth','api_key','cookie','keychain')),
				data            BLOB NOT NULL,
				nonce           BLOB NOT NULL,
				scopes          TEXT,
				user_label      TEXT,
				expires_at      INTEGER,
				created_at      INTEGER NOT NULL,
				updated_at      INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS policies (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				provider   TEXT NOT NULL,
				action     TEXT NOT NULL,
				allowed    INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				provider   TEXT NOT NULL,
				action     TEXT NOT NULL,
				detail     TEXT,
				created_at INTEGER NOT NULL
			);`,
		},
	},
	{
		version:  4,
		checksum: "oi-v4-devtask-tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS dev_tasks (
				id           TEXT PRIMARY KEY,
				intent       TEXT NOT NULL,
				status       TEXT NOT NULL CHECK (status IN ('pending','branching','coding','testing','pr_created','awaiting_review','completed','failed')),
				branch       TEXT,
				pr_url       TEXT,
				chat_id      INTEGER,
				retry_count  INTEGER NOT NULL DEFAULT 0,
				max_retries  INTEGER NOT NULL DEFAULT 3,
				error        TEXT,
				progress_log TEXT NOT NULL DEFAULT '',
				created_at   INTEGER NOT NULL,
				updated_at   INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS dev_task_messages (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id    TEXT NOT NULL REFERENCES dev_tasks(id) ON DELETE CASCADE,
				role       TEXT NOT NULL CHECK (role IN ('system','user','assistant','tool_result')),
				content    TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_dev_task_messages_task ON dev_task_messages(task_id, id);`,
		},
	},
}

// migrate applies pending migrations in order and verifies the checksum of
// every already-applied version.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		checksum   TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied string
		err := s.db.QueryRowContext(ctx,
			`SELECT checksum FROM schema_migrations WHERE version = ?`, m.version).Scan(&applied)
		switch {
		case err == nil:
			if applied != m.checksum {
				return fmt.Errorf("schema version %d checksum mismatch: have %q want %q", m.version, applied, m.checksum)
			}
			continue
		case err == sql.ErrNoRows:
			// Fall through and apply.
		default:
			return fmt.Errorf("read schema_migrations: %w", err)
		}

		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration v%d: %w", m.version, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`,
				m.version, m.checksum, nowMilli()); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
			return nil
		}); err != nil {
			return err
		}
		s.logger.Info("schema migration applied", "version", m.version)
	}
	return nil
}
