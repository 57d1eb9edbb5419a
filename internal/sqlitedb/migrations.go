package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/iqrahapp/iqrah-core/internal/logging"
)

// ErrMigration wraps any failure applying a schema migration.
var ErrMigration = errors.New("sqlitedb: migration failed")

// Migration is one forward-only schema step, identified by its target
// version. Statements run together in a single transaction.
type Migration struct {
	Version    int
	Statements []string
}

// Migrate applies every migration in order whose Version is greater than
// the database's current schema_version, all inside one transaction, then
// records the new version. Migrations never run backward: a database whose
// version exceeds the highest known migration is left untouched.
func Migrate(db *sql.DB, migrations []Migration) error {
	timer := logging.StartTimer(logging.CategorySQLite, "Migrate")
	defer timer.Stop()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("%w: create schema_version: %v", ErrMigration, err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("%w: read schema_version: %v", ErrMigration, err)
	}

	pending := 0
	for _, m := range migrations {
		if m.Version > current {
			pending++
		}
	}
	if pending == 0 {
		logging.Get(logging.CategorySQLite).Debug("schema up to date at version %d", current)
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrMigration, err)
	}
	defer tx.Rollback()

	applied := current
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("%w: version %d: %v", ErrMigration, m.Version, err)
			}
		}
		applied = m.Version
	}

	if _, err := tx.Exec(`INSERT INTO schema_version (id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version`, applied); err != nil {
		return fmt.Errorf("%w: record version: %v", ErrMigration, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrMigration, err)
	}

	logging.Get(logging.CategorySQLite).Info("migrated schema %d -> %d", current, applied)
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}
