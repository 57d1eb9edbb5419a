// Package memory is the typed wrapper over per-user mutable state: FSRS
// memory states, propagation audit rows, sessions, session items, and
// bandit arms.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/model"
)

// Repository owns the single read-write connection to a user's memory
// database and a per-user write-lock registry that serializes FSRS
// update -> propagation -> session_item insert into a total order, per
// spec.md §5.
type Repository struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wraps an already-opened, already-migrated database connection.
func New(db *sql.DB) *Repository {
	return &Repository{db: db, locks: make(map[string]*sync.Mutex)}
}

// DB exposes the underlying connection for read-only queries (session
// lookups, reporting) that don't need the per-user write lock. Writes
// MUST go through WithUserTx.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) userLock(userID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// WithUserTx serializes writes for userID behind that user's write lock,
// then runs fn inside a single transaction. If ctx is canceled while fn is
// running, the transaction is rolled back in full — partial application
// across FSRS update / propagation / session_item insert is never
// observable, per spec.md §5's cancellation requirement.
func (r *Repository) WithUserTx(ctx context.Context, userID string, fn func(tx *sql.Tx) error) error {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	timer := logging.StartTimer(logging.CategoryMemory, "WithUserTx")
	defer timer.Stop()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrStorage, ctx.Err())
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return nil
}

// GetState returns the memory state for (user, content_key), or
// (zero-value, false) if the node was never introduced.
func (r *Repository) GetState(userID string, contentKey model.NodeID) (model.MemoryState, bool, error) {
	row := r.db.QueryRow(`SELECT content_key, stability, difficulty, energy, last_reviewed_at, due_at, review_count
		FROM user_memory_states WHERE content_key = ?`, int64(contentKey))
	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return model.MemoryState{}, false, nil
	}
	if err != nil {
		return model.MemoryState{}, false, fmt.Errorf("%w: get state: %v", ErrStorage, err)
	}
	st.UserID = userID
	return st, true, nil
}

func scanState(row *sql.Row) (model.MemoryState, error) {
	var st model.MemoryState
	var key int64
	var lastReviewed sql.NullInt64
	if err := row.Scan(&key, &st.Stability, &st.Difficulty, &st.Energy, &lastReviewed, &st.DueAt, &st.ReviewCount); err != nil {
		return model.MemoryState{}, err
	}
	st.ContentKey = model.NodeID(key)
	st.LastReviewed = lastReviewed.Int64
	return st, nil
}

// GetStatesBatch returns memory states for many content keys in one
// query, keyed by content key; absent rows mean "never introduced" and
// are simply omitted so callers can distinguish that from energy 0.
func (r *Repository) GetStatesBatch(userID string, keys []model.NodeID) (map[model.NodeID]model.MemoryState, error) {
	result := make(map[model.NodeID]model.MemoryState, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	placeholders := ""
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = int64(k)
	}

	rows, err := r.db.Query(fmt.Sprintf(`SELECT content_key, stability, difficulty, energy, last_reviewed_at, due_at, review_count
		FROM user_memory_states WHERE content_key IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get states batch: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st model.MemoryState
		var key int64
		var lastReviewed sql.NullInt64
		if err := rows.Scan(&key, &st.Stability, &st.Difficulty, &st.Energy, &lastReviewed, &st.DueAt, &st.ReviewCount); err != nil {
			return nil, fmt.Errorf("%w: scan state: %v", ErrStorage, err)
		}
		st.ContentKey = model.NodeID(key)
		st.LastReviewed = lastReviewed.Int64
		st.UserID = userID
		result[st.ContentKey] = st
	}
	return result, rows.Err()
}

// UpsertState writes a memory state and the grade that produced it inside
// tx. Called by the session engine's single grade-submission transaction,
// never on its own.
func UpsertState(tx *sql.Tx, st model.MemoryState, grade int) error {
	_, err := tx.Exec(`INSERT INTO user_memory_states
			(content_key, stability, difficulty, energy, due_at, last_grade, last_reviewed_at, review_count)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(content_key) DO UPDATE SET
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			energy = excluded.energy,
			due_at = excluded.due_at,
			last_grade = excluded.last_grade,
			last_reviewed_at = excluded.last_reviewed_at,
			review_count = excluded.review_count`,
		int64(st.ContentKey), st.Stability, st.Difficulty, st.Energy, st.DueAt, grade, st.LastReviewed, st.ReviewCount)
	if err != nil {
		return fmt.Errorf("%w: upsert state: %v", ErrStorage, err)
	}
	return nil
}

// UpsertEnergyOnly updates just the energy column inside tx, used by the
// propagator for nodes it touches that are not the review's source node
// (and so have no grade/stability change to record).
func UpsertEnergyOnly(tx *sql.Tx, contentKey model.NodeID, energy float64, now int64) error {
	_, err := tx.Exec(`INSERT INTO user_memory_states (content_key, stability, difficulty, energy, due_at, last_reviewed_at, review_count)
		VALUES (?, 0, 5, ?, ?, ?, 0)
		ON CONFLICT(content_key) DO UPDATE SET energy = excluded.energy`,
		int64(contentKey), energy, now, now)
	if err != nil {
		return fmt.Errorf("%w: upsert energy: %v", ErrStorage, err)
	}
	return nil
}

// GetDue returns content keys due at or before beforeMs, oldest due first.
func (r *Repository) GetDue(userID string, beforeMs int64, limit int) ([]model.NodeID, error) {
	rows, err := r.db.Query(`SELECT content_key FROM user_memory_states WHERE due_at <= ? ORDER BY due_at ASC LIMIT ?`, beforeMs, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: get due: %v", ErrStorage, err)
	}
	defer rows.Close()

	var keys []model.NodeID
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan due: %v", ErrStorage, err)
		}
		keys = append(keys, model.NodeID(k))
	}
	return keys, rows.Err()
}

// GetActiveCount returns the number of nodes within a goal that have any
// memory state (i.e. have been introduced at least once).
func (r *Repository) GetActiveCount(goalMembers []model.NodeID) (int, error) {
	if len(goalMembers) == 0 {
		return 0, nil
	}
	placeholders := ""
	args := make([]interface{}, len(goalMembers))
	for i, k := range goalMembers {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = int64(k)
	}
	var count int
	err := r.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM user_memory_states WHERE content_key IN (%s)`, placeholders), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: get active count: %v", ErrStorage, err)
	}
	return count, nil
}

// RecordPropagation writes a propagation event and its per-node details
// inside tx, as part of the caller's single grade-submission transaction.
func RecordPropagation(tx *sql.Tx, ev model.PropagationEvent) error {
	_, err := tx.Exec(`INSERT INTO propagation_events (event_id, session_id, source_key, grade, created_at) VALUES (?,?,?,?,?)`,
		ev.ID, nullableString(ev.SessionID), int64(ev.SourceKey), ev.Grade, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert propagation event: %v", ErrStorage, err)
	}
	for _, d := range ev.Details {
		if _, err := tx.Exec(`INSERT INTO propagation_details (event_id, content_key, depth, delta) VALUES (?,?,?,?)`,
			ev.ID, int64(d.ContentKey), d.Depth, d.Delta); err != nil {
			return fmt.Errorf("%w: insert propagation detail: %v", ErrStorage, err)
		}
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetMemoryForGoal returns memory states for every member of a goal,
// keyed by content key.
func (r *Repository) GetMemoryForGoal(userID string, goalMembers []model.NodeID) (map[model.NodeID]model.MemoryState, error) {
	return r.GetStatesBatch(userID, goalMembers)
}

// Now returns the current time in epoch milliseconds. Exists so callers
// share one clock seam instead of each calling time.Now().UnixMilli().
func Now() int64 {
	return time.Now().UnixMilli()
}
