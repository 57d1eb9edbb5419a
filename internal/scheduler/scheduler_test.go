package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

func setup(t *testing.T) (*Scheduler, *memory.Repository) {
	t.Helper()
	cdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open content: %v", err)
	}
	t.Cleanup(func() { cdb.Close() })
	if err := sqlitedb.Migrate(cdb, sqlitedb.ContentMigrations); err != nil {
		t.Fatalf("migrate content: %v", err)
	}

	exec := func(q string, args ...interface{}) {
		if _, err := cdb.Exec(q, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (1,'n1','knowledge',1,'{"foundational_score":0.9,"influence_score":0.5}')`)
	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (2,'n2','knowledge',2,'{}')`)
	exec(`INSERT INTO edges (id, from_node_id, to_node_id, edge_type, distribution, param_a, param_b) VALUES ('e1',1,2,'dependency','const',1,0)`)
	exec(`INSERT INTO goals (id, name) VALUES ('g1','Goal')`)
	exec(`INSERT INTO goal_members (goal_id, node_id) VALUES ('g1',1)`)
	exec(`INSERT INTO goal_members (goal_id, node_id) VALUES ('g1',2)`)

	store := content.NewFromDB(cdb, 64)

	mdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	t.Cleanup(func() { mdb.Close() })
	if err := sqlitedb.Migrate(mdb, sqlitedb.UserMigrations); err != nil {
		t.Fatalf("migrate memory: %v", err)
	}
	repo := memory.New(mdb)

	return New(store, repo), repo
}

func balancedWeights() bandit.Weights {
	return bandit.Weights{Urgency: 1, Readiness: 1, Foundation: 1, Influence: 1}
}

func TestSchedule_EmptyGoal(t *testing.T) {
	s, _ := setup(t)
	_, err := s.Schedule(context.Background(), "u1", model.Goal{ID: "g1"}, balancedWeights(), 10, 0)
	if err != ErrEmptyGoal {
		t.Fatalf("expected ErrEmptyGoal, got %v", err)
	}
}

func TestSchedule_ColdStart_FallsBackToNoParentNodes(t *testing.T) {
	s, _ := setup(t)
	goal := model.Goal{ID: "g1", Members: []model.NodeID{1, 2}}

	result, err := s.Schedule(context.Background(), "u1", goal, balancedWeights(), 10, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Node 1 has no in-goal parents, so the gate admits it; node 2
	// depends on node 1, which has no memory state yet (energy 0 <
	// threshold), so node 2 is held back.
	if len(result) != 1 || result[0] != 1 {
		t.Fatalf("expected cold-start fallback to [1], got %v", result)
	}
}

func TestSchedule_PrereqSatisfied_AdmitsChild(t *testing.T) {
	s, repo := setup(t)
	goal := model.Goal{ID: "g1", Members: []model.NodeID{1, 2}}

	err := repo.WithUserTx(context.Background(), "u1", func(tx *sql.Tx) error {
		return memory.UpsertState(tx, model.MemoryState{ContentKey: 1, Stability: 1, Difficulty: 5, Energy: 0.5, DueAt: 1}, 2)
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	result, err := s.Schedule(context.Background(), "u1", goal, balancedWeights(), 10, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	found := false
	for _, id := range result {
		if id == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected node 2 admitted once parent energy >= threshold, got %v", result)
	}
}

// TestSchedule_ManyMembers_PrereqFanOutStaysCorrect exercises the bounded
// concurrent prerequisite lookup (maxConcurrentPrereqQueries is 8) with a
// goal well past that width, checking the fan-out doesn't scramble which
// parent belongs to which child.
func TestSchedule_ManyMembers_PrereqFanOutStaysCorrect(t *testing.T) {
	cdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open content: %v", err)
	}
	t.Cleanup(func() { cdb.Close() })
	if err := sqlitedb.Migrate(cdb, sqlitedb.ContentMigrations); err != nil {
		t.Fatalf("migrate content: %v", err)
	}

	exec := func(q string, args ...interface{}) {
		if _, err := cdb.Exec(q, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec(`INSERT INTO goals (id, name) VALUES ('g1','Goal')`)

	const chainLen = 25
	members := make([]model.NodeID, chainLen)
	for i := 0; i < chainLen; i++ {
		id := int64(i + 1)
		exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (?,?,?,?,'{}')`,
			id, fmt.Sprintf("n%d", id), "knowledge", id)
		exec(`INSERT INTO goal_members (goal_id, node_id) VALUES ('g1',?)`, id)
		if i > 0 {
			exec(`INSERT INTO edges (id, from_node_id, to_node_id, edge_type, distribution, param_a, param_b) VALUES (?,?,?,?,?,?,?)`,
				fmt.Sprintf("e%d", id), id-1, id, "dependency", "const", 1, 0)
		}
		members[i] = model.NodeID(id)
	}

	store := content.NewFromDB(cdb, 64)
	mdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	t.Cleanup(func() { mdb.Close() })
	if err := sqlitedb.Migrate(mdb, sqlitedb.UserMigrations); err != nil {
		t.Fatalf("migrate memory: %v", err)
	}
	s := New(store, memory.New(mdb))

	result, err := s.Schedule(context.Background(), "u1", model.Goal{ID: "g1", Members: members}, balancedWeights(), chainLen, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Node 1 has no in-goal parents, so the gate admits it; every other
	// member's parent has energy 0 < threshold, so only node 1 passes.
	if len(result) != 1 || result[0] != 1 {
		t.Fatalf("expected cold-start fallback to [1], got %v", result)
	}
}
