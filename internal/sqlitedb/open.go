// Package sqlitedb provides the shared SQLite bootstrap (pragmas, pooling)
// and forward-only migration runner used by both the content store and the
// memory repository.
package sqlitedb

import (
	"database/sql"
	"fmt"

	"github.com/iqrahapp/iqrah-core/internal/logging"
)

// Mode selects read/write semantics for Open.
type Mode int

const (
	// ReadOnly opens the database without write access and with a pool
	// sized for concurrent readers — used for the installed content
	// artifact, which spec.md requires be read-only process-wide.
	ReadOnly Mode = iota
	// ReadWrite opens the database for a single writer connection, per
	// spec.md's requirement that the memory repository own a pool of
	// size 1 under SQLite's WAL mode.
	ReadWrite
)

// Open opens a SQLite database at path with the pragmas this module
// relies on (WAL journal mode, foreign key enforcement, a busy timeout
// standing in for spec.md's 5s default operation timeout).
func Open(path string, mode Mode) (*sql.DB, error) {
	dsn := path
	if mode == ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro&_fk=1&_journal_mode=WAL", path)
	} else {
		dsn = fmt.Sprintf("file:%s?_fk=1&_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if mode == ReadWrite {
		// SQLite only supports one writer; a larger pool just serializes
		// at the driver level and hides lock contention from callers.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys on %s: %w", path, err)
	}

	logging.Get(logging.CategorySQLite).Info("opened database %s mode=%v", path, mode)
	return db, nil
}
