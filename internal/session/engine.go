// Package session orchestrates the review lifecycle: persistent sessions
// backed by the scheduler and bandit, and ad-hoc in-memory review queues.
// Every grade submission runs FSRS update, propagation, and the memory
// repository write inside one transaction, per spec.md §5.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/exercise"
	"github.com/iqrahapp/iqrah-core/internal/fsrs"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/propagation"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
)

const dayMs = int64(24 * 60 * 60 * 1000)

// Summary is returned by CompleteSession.
type Summary struct {
	ItemsCount      int
	ItemsCompleted  int
	GradeCounts     map[int]int
	TotalDurationMs int64
	Reward          float64
}

// Engine orchestrates persistent and ad-hoc review sessions.
type Engine struct {
	memory     *memory.Repository
	scheduler  *scheduler.Scheduler
	bandit     *bandit.Optimizer
	exercise   *exercise.Generator
	propagator *propagation.Propagator

	stateMu   sync.Mutex
	itemState map[string]map[string]string // "sessionID|position" -> stateful exercise state
}

// New wires the session engine over its component dependencies.
func New(repo *memory.Repository, sched *scheduler.Scheduler, opt *bandit.Optimizer, gen *exercise.Generator, prop *propagation.Propagator) *Engine {
	return &Engine{
		memory:     repo,
		scheduler:  sched,
		bandit:     opt,
		exercise:   gen,
		propagator: prop,
		itemState:  make(map[string]map[string]string),
	}
}

// StartSession abandons any previously active session for userID, selects
// a bandit arm, pre-generates the ordered candidate list, and persists the
// session plan as session_items rows (unanswered, grade NULL).
func (e *Engine) StartSession(ctx context.Context, userID string, goal model.Goal, sessionSize int, nowMs int64) (model.Session, error) {
	arm, err := e.bandit.Select(userID, goal.Group)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: select arm: %w", err)
	}

	nodeIDs, err := e.scheduler.Schedule(ctx, userID, goal, arm.Weights, sessionSize, nowMs)
	if err != nil {
		return model.Session{}, fmt.Errorf("session: schedule: %w", err)
	}

	sess := model.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		GoalID:     goal.ID,
		GoalGroup:  goal.Group,
		ArmProfile: arm.Name,
		State:      model.SessionActive,
		ItemsCount: len(nodeIDs),
		CreatedAt:  nowMs,
	}

	err = e.memory.WithUserTx(ctx, userID, func(tx *sql.Tx) error {
		if err := abandonActiveSession(tx, userID, nowMs); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO sessions (session_id, user_id, goal_id, goal_group, state, arm_profile, created_at, items_count, items_completed)
			VALUES (?,?,?,?,?,?,?,?,0)`,
			sess.ID, sess.UserID, sess.GoalID, sess.GoalGroup, string(sess.State), sess.ArmProfile, sess.CreatedAt, sess.ItemsCount); err != nil {
			return fmt.Errorf("session: insert session: %w", err)
		}
		for i, nodeID := range nodeIDs {
			exType := exercise.TypeMemorization
			ex, err := e.exercise.Generate(nodeID, nil)
			if err == nil {
				exType = ex.Type
			} else {
				logging.Get(logging.CategorySession).Warn("plan exercise generation failed for node %d: %v", nodeID, err)
			}
			if _, err := tx.Exec(`INSERT INTO session_items (session_id, position, content_key, exercise_type) VALUES (?,?,?,?)`,
				sess.ID, i, int64(nodeID), string(exType)); err != nil {
				return fmt.Errorf("session: insert session item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// abandonActiveSession marks a user's previously active session completed
// with its actual item count, implementing the implicit Abandoned
// transition of spec.md §4.8's state machine.
func abandonActiveSession(tx *sql.Tx, userID string, nowMs int64) error {
	rows, err := tx.Query(`SELECT session_id FROM sessions WHERE user_id = ? AND state = ?`, userID, string(model.SessionActive))
	if err != nil {
		return fmt.Errorf("session: find active session: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		var completed int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM session_items WHERE session_id = ? AND grade IS NOT NULL`, id).Scan(&completed); err != nil {
			return fmt.Errorf("session: count completed items: %w", err)
		}
		if _, err := tx.Exec(`UPDATE sessions SET state = ?, completed_at = ?, items_completed = ? WHERE session_id = ?`,
			string(model.SessionCompleted), nowMs, completed, id); err != nil {
			return fmt.Errorf("session: abandon session %s: %w", id, err)
		}
	}
	return nil
}

// GetNextItem returns the first unanswered item in sessionID's plan, or
// nil if every item has been submitted. Stateful exercise variants carry
// whatever state this engine instance is currently holding for the item.
func (e *Engine) GetNextItem(sessionID string) (*model.SessionItem, *exercise.ExerciseData, error) {
	sess, err := e.loadSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	row := e.memoryDB().QueryRow(`SELECT position, content_key, exercise_type FROM session_items
		WHERE session_id = ? AND grade IS NULL ORDER BY position ASC LIMIT 1`, sessionID)
	var position int
	var contentKey int64
	var exType string
	err = row.Scan(&position, &contentKey, &exType)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("session: next item: %w", err)
	}

	item := &model.SessionItem{SessionID: sess.ID, Position: position, ContentKey: model.NodeID(contentKey), ExerciseType: exType}

	prior := e.loadItemState(sessionID, position)
	data, err := e.exercise.Generate(model.NodeID(contentKey), prior)
	if err != nil {
		return nil, nil, fmt.Errorf("session: regenerate exercise: %w", err)
	}
	if data.State != nil {
		e.saveItemState(sessionID, position, data.State)
	}
	return item, &data, nil
}

// Submit grades a session item: FSRS update, propagation, and the
// session_items/sessions bookkeeping all run in one transaction.
func (e *Engine) Submit(ctx context.Context, sessionID string, nodeID model.NodeID, grade int, durationMs int64, nowMs int64) error {
	if grade < 0 || grade > 3 {
		return ErrInvalidGrade
	}
	sess, err := e.loadSession(sessionID)
	if err != nil {
		return err
	}
	if sess.State != model.SessionActive {
		return ErrAlreadyCompleted
	}

	return e.memory.WithUserTx(ctx, sess.UserID, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE session_items SET grade = ?, answered_at = ?, duration_ms = ?
			WHERE session_id = ? AND content_key = ? AND grade IS NULL`,
			grade, nowMs, durationMs, sessionID, int64(nodeID))
		if err != nil {
			return fmt.Errorf("session: mark item answered: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInvalidItem
		}

		if err := applyGrade(ctx, tx, e.propagator, sess.UserID, sessionID, nodeID, grade, nowMs); err != nil {
			return err
		}

		if _, err := tx.Exec(`UPDATE sessions SET items_completed = items_completed + 1 WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("session: increment items_completed: %w", err)
		}
		return nil
	})
}

// CompleteSession computes the session summary and rewards the bandit
// arm that was selected at StartSession.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := e.loadSession(sessionID)
	if err != nil {
		return Summary{}, err
	}
	if sess.State == model.SessionCompleted {
		return Summary{}, ErrAlreadyCompleted
	}

	rows, err := e.memoryDB().Query(`SELECT grade, duration_ms FROM session_items WHERE session_id = ? AND grade IS NOT NULL`, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("session: query items: %w", err)
	}
	gradeCounts := make(map[int]int)
	var itemsCompleted int
	var totalDuration int64
	for rows.Next() {
		var grade int
		var duration sql.NullInt64
		if err := rows.Scan(&grade, &duration); err != nil {
			rows.Close()
			return Summary{}, err
		}
		gradeCounts[grade]++
		totalDuration += duration.Int64
		itemsCompleted++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	goodOrEasy := gradeCounts[int(fsrs.Good)] + gradeCounts[int(fsrs.Easy)]
	reward := bandit.Reward(goodOrEasy, itemsCompleted, sess.ItemsCount)

	err = e.memory.WithUserTx(ctx, sess.UserID, func(tx *sql.Tx) error {
		if err := bandit.Update(tx, sess.UserID, sess.GoalGroup, sess.ArmProfile, reward); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE sessions SET state = ?, completed_at = ?, items_completed = ? WHERE session_id = ?`,
			string(model.SessionCompleted), memory.Now(), itemsCompleted, sessionID)
		if err != nil {
			return fmt.Errorf("session: complete: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	e.clearSessionState(sessionID)

	return Summary{
		ItemsCount:      sess.ItemsCount,
		ItemsCompleted:  itemsCompleted,
		GradeCounts:     gradeCounts,
		TotalDurationMs: totalDuration,
		Reward:          reward,
	}, nil
}

// ResumeActiveSession returns the caller's open session and its next
// unfinished item, or (nil, nil, nil) if there is none.
func (e *Engine) ResumeActiveSession(userID string) (*model.Session, *model.SessionItem, *exercise.ExerciseData, error) {
	row := e.memoryDB().QueryRow(`SELECT session_id, goal_id, arm_profile, created_at, items_count, items_completed
		FROM sessions WHERE user_id = ? AND state = ? ORDER BY created_at DESC LIMIT 1`, userID, string(model.SessionActive))
	var sess model.Session
	sess.UserID = userID
	sess.State = model.SessionActive
	err := row.Scan(&sess.ID, &sess.GoalID, &sess.ArmProfile, &sess.CreatedAt, &sess.ItemsCount, &sess.ItemsCompleted)
	if err == sql.ErrNoRows {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("session: resume: %w", err)
	}

	item, data, err := e.GetNextItem(sess.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return &sess, item, data, nil
}

func (e *Engine) loadSession(sessionID string) (model.Session, error) {
	var sess model.Session
	var completedAt sql.NullInt64
	var state string
	err := e.memoryDB().QueryRow(`SELECT session_id, user_id, goal_id, goal_group, state, arm_profile, created_at, completed_at, items_count, items_completed
		FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&sess.ID, &sess.UserID, &sess.GoalID, &sess.GoalGroup, &state, &sess.ArmProfile, &sess.CreatedAt, &completedAt, &sess.ItemsCount, &sess.ItemsCompleted)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("session: load: %w", err)
	}
	sess.State = model.SessionState(state)
	sess.CompletedAt = completedAt.Int64
	return sess, nil
}

func (e *Engine) loadItemState(sessionID string, position int) map[string]string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.itemState[itemStateKey(sessionID, position)]
}

func (e *Engine) saveItemState(sessionID string, position int, state map[string]string) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.itemState[itemStateKey(sessionID, position)] = state
}

func (e *Engine) clearSessionState(sessionID string) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	prefix := sessionID + "|"
	for k := range e.itemState {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.itemState, k)
		}
	}
}

func itemStateKey(sessionID string, position int) string {
	return fmt.Sprintf("%s|%d", sessionID, position)
}

// memoryDB exposes the repository's connection for read-only queries that
// don't need the per-user write lock (no writes happen off these rows).
func (e *Engine) memoryDB() *sql.DB {
	return e.memory.DB()
}

// applyGrade runs the FSRS update and propagation cascade for one grade
// submission inside tx, shared by persistent Submit and ad-hoc review.
func applyGrade(ctx context.Context, tx *sql.Tx, prop *propagation.Propagator, userID, sessionID string, nodeID model.NodeID, grade int, nowMs int64) error {
	prior, err := queryState(tx, nodeID)
	if err != nil {
		return fmt.Errorf("session: load prior state: %w", err)
	}

	elapsedDays := 0.0
	if prior.found && prior.lastReviewed > 0 {
		elapsedDays = float64(nowMs-prior.lastReviewed) / float64(dayMs)
	}
	prevFSRS := fsrs.State{Stability: prior.stability, Difficulty: prior.difficulty}
	if !prior.found {
		prevFSRS = fsrs.State{Stability: 0, Difficulty: 5}
	}

	g := fsrs.Grade(grade)
	next := fsrs.Update(prevFSRS, g, elapsedDays)
	energy := fsrs.EnergyBase(g)
	dueAt := fsrs.DueAtMs(nowMs, next.Stability)

	newState := model.MemoryState{
		ContentKey:   nodeID,
		Stability:    next.Stability,
		Difficulty:   next.Difficulty,
		Energy:       energy,
		LastReviewed: nowMs,
		DueAt:        dueAt,
		ReviewCount:  prior.reviewCount + 1,
	}
	if err := memory.UpsertState(tx, newState, grade); err != nil {
		return err
	}

	sourceDelta := energy - prior.energy
	ev := model.PropagationEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SourceKey: nodeID,
		Grade:     grade,
		CreatedAt: nowMs,
	}
	currentEnergy := func(id model.NodeID) (float64, error) {
		st, err := queryState(tx, id)
		if err != nil {
			return 0, err
		}
		return st.energy, nil
	}
	if _, err := prop.Propagate(ctx, tx, userID, ev, sourceDelta, currentEnergy); err != nil {
		return fmt.Errorf("session: propagate: %w", err)
	}
	return nil
}

type priorState struct {
	found        bool
	stability    float64
	difficulty   float64
	energy       float64
	lastReviewed int64
	reviewCount  int32
}

func queryState(tx *sql.Tx, contentKey model.NodeID) (priorState, error) {
	var st priorState
	var lastReviewed sql.NullInt64
	err := tx.QueryRow(`SELECT stability, difficulty, energy, last_reviewed_at, review_count
		FROM user_memory_states WHERE content_key = ?`, int64(contentKey)).
		Scan(&st.stability, &st.difficulty, &st.energy, &lastReviewed, &st.reviewCount)
	if err == sql.ErrNoRows {
		return priorState{difficulty: 5}, nil
	}
	if err != nil {
		return priorState{}, err
	}
	st.found = true
	st.lastReviewed = lastReviewed.Int64
	return st, nil
}
