package content

import (
	"database/sql"
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlitedb.Migrate(db, sqlitedb.ContentMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedContent(t, db)
	return newStoreFromDB(db, 64)
}

func seedContent(t *testing.T, db *sql.DB) {
	t.Helper()
	exec := func(q string, args ...interface{}) {
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("seed exec %q: %v", q, err)
		}
	}

	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (?,?,?,?,?)`,
		1, "VERSE:1:1:memorization", string(model.NodeKnowledge), 1, `{"foundational_score":0.9,"influence_score":0.8}`)
	exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (?,?,?,?,?)`,
		2, "VERSE:1:2:memorization", string(model.NodeKnowledge), 2, `{}`)

	exec(`INSERT INTO edges (id, from_node_id, to_node_id, edge_type, distribution, param_a, param_b) VALUES (?,?,?,?,?,?,?)`,
		"e1", 1, 2, string(model.EdgeDependency), string(model.DistConst), 0.9, 0)

	exec(`INSERT INTO goals (id, name) VALUES (?,?)`, "g1", "Al-Fatiha")
	exec(`INSERT INTO goal_members (goal_id, node_id) VALUES (?,?)`, "g1", 1)
	exec(`INSERT INTO goal_members (goal_id, node_id) VALUES (?,?)`, "g1", 2)

	exec(`INSERT INTO verses (verse_key, text) VALUES (?,?)`, "1:1", "bismillah")
	exec(`INSERT INTO words (verse_key, position, text, root) VALUES (?,?,?,?)`, "1:1", 0, "bismi", "smw")
	exec(`INSERT INTO translations (verse_key, language, text) VALUES (?,?,?)`, "1:1", "en", "In the name of Allah")
}

func TestGetNode_Found(t *testing.T) {
	s := newTestStore(t)
	n, err := s.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.Ukey != "VERSE:1:1:memorization" {
		t.Fatalf("unexpected ukey: %s", n.Ukey)
	}
}

func TestGetNode_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetNode(999)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEdgesFrom(t *testing.T) {
	s := newTestStore(t)
	edges, err := s.GetEdgesFrom(1)
	if err != nil {
		t.Fatalf("GetEdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].To != 2 {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}

func TestGetGoalMembers(t *testing.T) {
	s := newTestStore(t)
	members, err := s.GetGoalMembers("g1")
	if err != nil {
		t.Fatalf("GetGoalMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestGetVersesBatch(t *testing.T) {
	s := newTestStore(t)
	result, err := s.GetVersesBatch([]string{"1:1", "9:9"})
	if err != nil {
		t.Fatalf("GetVersesBatch: %v", err)
	}
	if result["1:1"] != "bismillah" {
		t.Fatalf("unexpected text: %v", result)
	}
	if _, ok := result["9:9"]; ok {
		t.Fatalf("expected missing key to be absent, got present")
	}
}

func TestGetNodeMetadata_DefaultsWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	meta, err := s.GetNodeMetadata(2)
	if err != nil {
		t.Fatalf("GetNodeMetadata: %v", err)
	}
	if meta.FoundationalScore != 0.5 || meta.InfluenceScore != 0.5 {
		t.Fatalf("expected default scores, got %+v", meta)
	}
}

func TestGetTranslation(t *testing.T) {
	s := newTestStore(t)
	text, err := s.GetTranslation("1:1", "en")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if text != "In the name of Allah" {
		t.Fatalf("unexpected translation: %s", text)
	}
}

// TestSwap_ClearsCachesAfterArtifactInstall exercises the invalidation path
// an installer runs after replacing the underlying database file: populate
// both caches, swap in a database whose row 1 has a different ukey, and
// confirm the stale cached value is gone rather than served from the LRU.
func TestSwap_ClearsCachesAfterArtifactInstall(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetNode(1); err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if _, err := s.GetEdgesFrom(1); err != nil {
		t.Fatalf("GetEdgesFrom: %v", err)
	}
	if s.nodeCache.Len() == 0 || s.edgeCache.Len() == 0 {
		t.Fatalf("expected populated caches before swap, got node=%d edge=%d", s.nodeCache.Len(), s.edgeCache.Len())
	}

	newDB, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open replacement db: %v", err)
	}
	t.Cleanup(func() { newDB.Close() })
	if err := sqlitedb.Migrate(newDB, sqlitedb.ContentMigrations); err != nil {
		t.Fatalf("migrate replacement db: %v", err)
	}
	if _, err := newDB.Exec(`INSERT INTO nodes (id, ukey, node_type, quran_order, metadata) VALUES (?,?,?,?,?)`,
		1, "VERSE:2:1:memorization", string(model.NodeKnowledge), 1, `{}`); err != nil {
		t.Fatalf("seed replacement db: %v", err)
	}

	s.db = newDB
	s.Swap()

	if s.nodeCache.Len() != 0 || s.edgeCache.Len() != 0 {
		t.Fatalf("expected empty caches after Swap, got node=%d edge=%d", s.nodeCache.Len(), s.edgeCache.Len())
	}

	n, err := s.GetNode(1)
	if err != nil {
		t.Fatalf("GetNode after swap: %v", err)
	}
	if n.Ukey != "VERSE:2:1:memorization" {
		t.Fatalf("expected post-swap ukey, got stale value %q", n.Ukey)
	}
}
