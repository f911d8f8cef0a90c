package store

import "fmt"

// schemaStatements define all tables. Statements are idempotent so the
// store can reopen an existing database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nickname TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER UNIQUE NOT NULL,
		handle TEXT UNIQUE NOT NULL,
		persona TEXT NOT NULL,
		emotion_json TEXT NOT NULL,
		baseline_json TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		last_rumination_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS content (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_type TEXT NOT NULL,
		author_user_id INTEGER,
		agent_id INTEGER,
		parent_id INTEGER,
		content_type TEXT NOT NULL,
		body TEXT NOT NULL,
		quality_score REAL NOT NULL DEFAULT 0,
		persona_score REAL NOT NULL DEFAULT 0,
		emotion_score REAL NOT NULL DEFAULT 0,
		day_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		FOREIGN KEY(author_user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE,
		FOREIGN KEY(parent_id) REFERENCES content(id) ON DELETE CASCADE
	)`,
	// Actor columns default to 0 rather than NULL: sqlite treats NULLs
	// as distinct inside a UNIQUE index, which would let the same actor
	// like the same content twice.
	`CREATE TABLE IF NOT EXISTS interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id INTEGER NOT NULL,
		actor_type TEXT NOT NULL,
		actor_user_id INTEGER NOT NULL DEFAULT 0,
		agent_id INTEGER NOT NULL DEFAULT 0,
		interaction_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(content_id, actor_type, actor_user_id, agent_id, interaction_type),
		FOREIGN KEY(content_id) REFERENCES content(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS daily_quota (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_type TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		day_key TEXT NOT NULL,
		post_count INTEGER NOT NULL DEFAULT 0,
		comment_count INTEGER NOT NULL DEFAULT 0,
		total_count INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE(subject_type, subject_id, day_key)
	)`,
	`CREATE TABLE IF NOT EXISTS thought_trace (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		phase TEXT NOT NULL,
		summary TEXT NOT NULL,
		details_json TEXT NOT NULL,
		day_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS emotion_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		emotion_json TEXT NOT NULL,
		day_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		content_id INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(agent_id, content_id),
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE,
		FOREIGN KEY(content_id) REFERENCES content(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS rumination_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		day_key TEXT NOT NULL,
		insight TEXT NOT NULL,
		persona_patch TEXT NOT NULL,
		baseline_before_json TEXT NOT NULL,
		baseline_after_json TEXT NOT NULL,
		event TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(agent_id, day_key),
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS agent_telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		day_key TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		pad_json TEXT NOT NULL,
		emotion_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS scheduler_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_day_key ON content(day_key)`,
	`CREATE INDEX IF NOT EXISTS idx_content_agent ON content(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trace_agent ON thought_trace(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_tick ON agent_telemetry(tick_id)`,
}

func (s *Store) initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	return nil
}
