package session

import (
	"context"
	"database/sql"

	"github.com/iqrahapp/iqrah-core/internal/model"
)

// AdhocHandle is an in-memory review queue: no session or bandit tables
// are touched, per spec.md §4.8's ad-hoc mode.
type AdhocHandle struct {
	UserID string
	queue  []model.NodeID
	pos    int
}

// StartAdhoc returns a handle over a caller-supplied queue of content
// keys to review outside of any session.
func (e *Engine) StartAdhoc(userID string, nodeIDs []model.NodeID) *AdhocHandle {
	return &AdhocHandle{UserID: userID, queue: append([]model.NodeID(nil), nodeIDs...)}
}

// NextAdhoc returns the next content key in the queue, or false once
// exhausted.
func (h *AdhocHandle) NextAdhoc() (model.NodeID, bool) {
	if h.pos >= len(h.queue) {
		return 0, false
	}
	return h.queue[h.pos], true
}

// SubmitAdhoc grades the current head of the queue: FSRS update and
// propagation run in one transaction, exactly as in persistent mode, but
// no session_items/sessions/user_bandit_state row is touched.
func (e *Engine) SubmitAdhoc(ctx context.Context, h *AdhocHandle, grade int, nowMs int64) error {
	if grade < 0 || grade > 3 {
		return ErrInvalidGrade
	}
	nodeID, ok := h.NextAdhoc()
	if !ok {
		return ErrInvalidItem
	}

	err := e.memory.WithUserTx(ctx, h.UserID, func(tx *sql.Tx) error {
		return applyGrade(ctx, tx, e.propagator, h.UserID, "", nodeID, grade, nowMs)
	})
	if err != nil {
		return err
	}
	h.pos++
	return nil
}
