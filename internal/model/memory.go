package model

// MemoryState is a per-(user, content_key) FSRS+energy record. Absence of
// a row for a content key means "never introduced" — callers must treat
// that as energy 0, not as a due item.
type MemoryState struct {
	UserID        string
	ContentKey    NodeID
	Stability     float64
	Difficulty    float64
	Energy        float64 // in [0,1]
	LastReviewed  int64   // epoch ms, 0 if never reviewed
	DueAt         int64   // epoch ms
	ReviewCount   int32
}

// PropagationEvent records one energy cascade triggered by a grade
// submission, for audit; not required for scheduling correctness.
type PropagationEvent struct {
	ID          string
	SessionID   string // empty for ad-hoc reviews
	SourceKey   NodeID
	Grade       int
	CreatedAt   int64
	Details     []PropagationDetail
}

// PropagationDetail is one affected node's energy delta within an event.
type PropagationDetail struct {
	ContentKey NodeID
	Depth      int
	Delta      float64
}

// SessionState is the session lifecycle's state machine position.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionActive     SessionState = "active"
	SessionCompleted  SessionState = "completed"
)

// Session is a persistent-mode review session.
type Session struct {
	ID             string
	UserID         string
	GoalID         string
	GoalGroup      string // bandit context the session's arm was selected under
	ArmProfile     string
	State          SessionState
	ItemsCount     int
	ItemsCompleted int
	CreatedAt      int64
	CompletedAt    int64 // 0 if not completed
}

// SessionItem is one scheduled exercise within a session.
type SessionItem struct {
	SessionID    string
	Position     int
	ContentKey   NodeID
	ExerciseType string
	Grade        *int
	AnsweredAt   int64
}

// BanditArm is a (user, goal_group, profile) Beta posterior.
type BanditArm struct {
	UserID     string
	GoalGroup  string
	ArmName    string
	Successes  float64
	Failures   float64
}
