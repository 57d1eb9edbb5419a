package sqlitedb

// ContentMigrations describes the read-only content artifact schema.
// Building content artifacts is out of scope (content pipeline tooling,
// per spec.md Non-goals) but test fixtures need to construct a
// well-formed artifact, so the schema lives here alongside the
// user schema rather than being reverse-engineered ad hoc by callers.
var ContentMigrations = []Migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE nodes (
				id          TEXT PRIMARY KEY,
				ukey        TEXT NOT NULL UNIQUE,
				node_type   TEXT NOT NULL,
				quran_order INTEGER NOT NULL,
				metadata    TEXT NOT NULL DEFAULT '{}'
			) STRICT`,
			`CREATE INDEX idx_nodes_ukey ON nodes(ukey)`,
			`CREATE INDEX idx_nodes_quran_order ON nodes(quran_order)`,

			`CREATE TABLE edges (
				id            TEXT PRIMARY KEY,
				from_node_id  TEXT NOT NULL REFERENCES nodes(id),
				to_node_id    TEXT NOT NULL REFERENCES nodes(id),
				edge_type     TEXT NOT NULL,
				distribution  TEXT NOT NULL,
				param_a       REAL NOT NULL,
				param_b       REAL NOT NULL DEFAULT 0
			) STRICT`,
			`CREATE INDEX idx_edges_from ON edges(from_node_id)`,
			`CREATE INDEX idx_edges_to ON edges(to_node_id)`,

			`CREATE TABLE goals (
				id       TEXT PRIMARY KEY,
				name     TEXT NOT NULL
			) STRICT`,

			`CREATE TABLE goal_members (
				goal_id TEXT NOT NULL REFERENCES goals(id),
				node_id TEXT NOT NULL REFERENCES nodes(id),
				PRIMARY KEY (goal_id, node_id)
			) STRICT`,

			`CREATE TABLE verses (
				verse_key TEXT PRIMARY KEY,
				text      TEXT NOT NULL
			) STRICT`,

			`CREATE TABLE words (
				verse_key TEXT NOT NULL REFERENCES verses(verse_key),
				position  INTEGER NOT NULL,
				text      TEXT NOT NULL,
				root      TEXT,
				PRIMARY KEY (verse_key, position)
			) STRICT`,

			`CREATE TABLE translations (
				verse_key TEXT NOT NULL REFERENCES verses(verse_key),
				language  TEXT NOT NULL,
				text      TEXT NOT NULL,
				PRIMARY KEY (verse_key, language)
			) STRICT`,

			`CREATE TABLE artifact_meta (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			) STRICT`,
		},
	},
}
