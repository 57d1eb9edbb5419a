package sqlitedb

// UserMigrations is the forward-only migration set for the per-user memory
// database: user_memory_states, propagation_events, propagation_details,
// sessions, session_items, user_bandit_state, app_settings, user_stats.
// Timestamps are epoch milliseconds throughout, per spec.md §6.
var UserMigrations = []Migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE user_memory_states (
				content_key   TEXT PRIMARY KEY,
				stability     REAL NOT NULL,
				difficulty    REAL NOT NULL,
				energy        REAL NOT NULL,
				due_at        INTEGER NOT NULL,
				last_grade    INTEGER,
				last_reviewed_at INTEGER,
				review_count  INTEGER NOT NULL DEFAULT 0
			) STRICT`,
			`CREATE INDEX idx_user_memory_states_due ON user_memory_states(due_at)`,

			`CREATE TABLE propagation_events (
				event_id    TEXT PRIMARY KEY,
				session_id  TEXT,
				source_key  TEXT NOT NULL,
				grade       INTEGER NOT NULL,
				created_at  INTEGER NOT NULL
			) STRICT`,

			`CREATE TABLE propagation_details (
				event_id    TEXT NOT NULL REFERENCES propagation_events(event_id),
				content_key TEXT NOT NULL,
				depth       INTEGER NOT NULL,
				delta       REAL NOT NULL,
				PRIMARY KEY (event_id, content_key)
			) STRICT`,

			`CREATE TABLE sessions (
				session_id   TEXT PRIMARY KEY,
				user_id      TEXT NOT NULL,
				goal_id      TEXT NOT NULL,
				state        TEXT NOT NULL,
				arm_profile  TEXT NOT NULL,
				created_at   INTEGER NOT NULL,
				completed_at INTEGER
			) STRICT`,

			`CREATE TABLE session_items (
				session_id  TEXT NOT NULL REFERENCES sessions(session_id),
				position    INTEGER NOT NULL,
				content_key TEXT NOT NULL,
				exercise_type TEXT NOT NULL,
				grade       INTEGER,
				answered_at INTEGER,
				PRIMARY KEY (session_id, position)
			) STRICT`,

			`CREATE TABLE user_bandit_state (
				user_id     TEXT NOT NULL,
				goal_group  TEXT NOT NULL,
				arm_name    TEXT NOT NULL,
				successes   REAL NOT NULL DEFAULT 1,
				failures    REAL NOT NULL DEFAULT 1,
				PRIMARY KEY (user_id, goal_group, arm_name)
			) STRICT`,

			`CREATE TABLE app_settings (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			) STRICT`,

			`CREATE TABLE user_stats (
				user_id       TEXT PRIMARY KEY,
				total_reviews INTEGER NOT NULL DEFAULT 0,
				streak_days   INTEGER NOT NULL DEFAULT 0,
				last_active_at INTEGER
			) STRICT`,
		},
	},
	{
		// items_count/items_completed track the session engine's
		// pre-generated plan size and completion progress; goal_group
		// records the bandit context the session's arm was selected
		// under, so completion rewards the same (user, goal_group, arm)
		// triple; duration_ms records each submitted item's answer time.
		// Per spec.md §6's sessions/session_items schema.
		Version: 2,
		Statements: []string{
			`ALTER TABLE sessions ADD COLUMN items_count INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE sessions ADD COLUMN items_completed INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE sessions ADD COLUMN goal_group TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE session_items ADD COLUMN duration_ms INTEGER`,
		},
	},
}
