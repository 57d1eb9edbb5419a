package propagation

import (
	"context"
	"database/sql"
	"math"
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T) (*content.Store, *memory.Repository, *sql.DB) {
	t.Helper()
	cdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open content db: %v", err)
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
	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (1,'w1','word_instance',1,'{}')`)
	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (2,'v1','verse',2,'{}')`)
	exec(`INSERT INTO edges (id, from_node_id, to_node_id, edge_type, distribution, param_a, param_b) VALUES ('e1',1,2,'dependency','const',0.8,0)`)

	store := content.NewFromDB(cdb, 64)

	mdb, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { mdb.Close() })
	if err := sqlitedb.Migrate(mdb, sqlitedb.UserMigrations); err != nil {
		t.Fatalf("migrate memory: %v", err)
	}

	return store, memory.New(mdb), mdb
}

func TestPropagate_ReinforcingDirectionFullWeight(t *testing.T) {
	store, repo, mdb := setup(t)
	p := New(store, Config{DefaultDepth: 3, MinDelta: 0.01})

	ev := model.PropagationEvent{ID: "ev1", SourceKey: 1, Grade: 2, CreatedAt: 1000}

	err := repo.WithUserTx(context.Background(), "u1", func(tx *sql.Tx) error {
		_, err := p.Propagate(context.Background(), tx, "u1", ev, 0.5, func(id model.NodeID) (float64, error) {
			// Read through tx: the ReadWrite pool has one connection, and
			// the transaction holds it.
			var energy float64
			err := tx.QueryRow(`SELECT energy FROM user_memory_states WHERE content_key = ?`, int64(id)).Scan(&energy)
			if err == sql.ErrNoRows {
				return 0, nil
			}
			return energy, err
		})
		return err
	})
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}

	st, ok, err := repo.GetState("u1", 2)
	if err != nil || !ok {
		t.Fatalf("expected node 2 to have received energy: ok=%v err=%v", ok, err)
	}
	if math.Abs(st.Energy-0.4) > 1e-6 {
		t.Fatalf("expected full-weight delta 0.5*0.8=0.4, got %v", st.Energy)
	}

	_ = mdb
}
