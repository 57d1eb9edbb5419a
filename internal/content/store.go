// Package content is the read-only façade over the installed content
// artifact: nodes, edges, goal membership, verse/word text, and
// translations. Every operation is a pure function of the installed
// database — no node is ever mutated at runtime.
package content

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iqrahapp/iqrah-core/internal/cache"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

// Store is a process-wide singleton, read-only after Open. It must be
// constructed exactly once via Open; there is no implicit lazy init.
type Store struct {
	db        *sql.DB
	nodeCache *cache.LRU[model.Node]
	edgeCache *cache.LRU[[]model.Edge]
}

// Open initializes the content store from the database at path and
// prepares its LRU cache with the given capacity. The returned Store is
// safe for concurrent read-only use by many goroutines.
func Open(path string, cacheCapacity int) (*Store, error) {
	db, err := sqlitedb.Open(path, sqlitedb.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("content: open %s: %w", path, err)
	}
	return newStoreFromDB(db, cacheCapacity), nil
}

// NewFromDB wraps an already-opened, already-migrated database connection
// directly, bypassing Open's file-path bootstrap. Used by tests and by
// callers that share a single in-memory database connection across
// components.
func NewFromDB(db *sql.DB, cacheCapacity int) *Store {
	return newStoreFromDB(db, cacheCapacity)
}

func newStoreFromDB(db *sql.DB, cacheCapacity int) *Store {
	return &Store{
		db:        db,
		nodeCache: cache.NewLRU[model.Node](cacheCapacity),
		edgeCache: cache.NewLRU[[]model.Edge](cacheCapacity),
	}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Swap replaces the store's cache contents after a new artifact is
// installed in place of path. Callers must re-Open against the new path;
// Swap only clears the stale cache entries a long-lived Store instance
// would otherwise keep serving.
func (s *Store) Swap() {
	s.nodeCache.Clear()
	s.edgeCache.Clear()
}

func cacheKey(op string, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(op)
	for _, a := range args {
		fmt.Fprintf(&b, ":%v", a)
	}
	return b.String()
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(id model.NodeID) (model.Node, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetNode")
	defer timer.Stop()

	key := cacheKey("node", id)
	if n, ok := s.nodeCache.Get(key); ok {
		return n, nil
	}

	var n model.Node
	var nodeType string
	err := s.db.QueryRow(`SELECT id, ukey, node_type, quran_order FROM nodes WHERE id = ?`, int64(id)).
		Scan(&n.ID, &n.Ukey, &nodeType, &n.QuranOrder)
	if err == sql.ErrNoRows {
		return model.Node{}, ErrNotFound
	}
	if err != nil {
		return model.Node{}, fmt.Errorf("content: get node %d: %w", id, err)
	}
	n.Type = model.NodeType(nodeType)
	s.nodeCache.Set(key, n)
	return n, nil
}

// GetNodeByUkey resolves a node by its stable human-readable key.
func (s *Store) GetNodeByUkey(ukey string) (model.Node, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetNodeByUkey")
	defer timer.Stop()

	key := cacheKey("node_ukey", ukey)
	if n, ok := s.nodeCache.Get(key); ok {
		return n, nil
	}

	var n model.Node
	var nodeType string
	err := s.db.QueryRow(`SELECT id, ukey, node_type, quran_order FROM nodes WHERE ukey = ?`, ukey).
		Scan(&n.ID, &n.Ukey, &nodeType, &n.QuranOrder)
	if err == sql.ErrNoRows {
		return model.Node{}, ErrNotFound
	}
	if err != nil {
		return model.Node{}, fmt.Errorf("content: get node by ukey %s: %w", ukey, err)
	}
	n.Type = model.NodeType(nodeType)
	s.nodeCache.Set(key, n)
	s.nodeCache.Set(cacheKey("node", n.ID), n)
	return n, nil
}

func (s *Store) queryEdges(column string, id model.NodeID) ([]model.Edge, error) {
	query := fmt.Sprintf(`SELECT id, from_node_id, to_node_id, edge_type, distribution, param_a, param_b
		FROM edges WHERE %s = ?`, column)
	rows, err := s.db.Query(query, int64(id))
	if err != nil {
		return nil, fmt.Errorf("content: query edges: %w", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		var edgeType, distType string
		var from, to int64
		if err := rows.Scan(&e.ID, &from, &to, &edgeType, &distType, &e.Distribution.ParamA, &e.Distribution.ParamB); err != nil {
			return nil, fmt.Errorf("content: scan edge: %w", err)
		}
		e.From = model.NodeID(from)
		e.To = model.NodeID(to)
		e.Type = model.EdgeType(edgeType)
		e.Distribution.Type = model.DistributionType(distType)
		if e.Distribution.Type == model.DistConst {
			e.Weight = float32(e.Distribution.ParamA)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// GetEdgesFrom returns all outgoing edges from a node.
func (s *Store) GetEdgesFrom(id model.NodeID) ([]model.Edge, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetEdgesFrom")
	defer timer.Stop()

	key := cacheKey("edges_from", id)
	if e, ok := s.edgeCache.Get(key); ok {
		return e, nil
	}
	edges, err := s.queryEdges("from_node_id", id)
	if err != nil {
		return nil, err
	}
	s.edgeCache.Set(key, edges)
	return edges, nil
}

// GetEdgesTo returns all incoming edges to a node — used by the
// scheduler's prerequisite gate to find dependency parents.
func (s *Store) GetEdgesTo(id model.NodeID) ([]model.Edge, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetEdgesTo")
	defer timer.Stop()

	key := cacheKey("edges_to", id)
	if e, ok := s.edgeCache.Get(key); ok {
		return e, nil
	}
	edges, err := s.queryEdges("to_node_id", id)
	if err != nil {
		return nil, err
	}
	s.edgeCache.Set(key, edges)
	return edges, nil
}

// GetNodeMetadata returns the offline-computed scalar scores for a node.
func (s *Store) GetNodeMetadata(id model.NodeID) (model.NodeMetadata, error) {
	n, err := s.GetNode(id)
	if err != nil {
		return model.NodeMetadata{}, err
	}

	var raw string
	err = s.db.QueryRow(`SELECT metadata FROM nodes WHERE id = ?`, int64(id)).Scan(&raw)
	if err != nil {
		return model.NodeMetadata{}, fmt.Errorf("content: get metadata %d: %w", id, err)
	}
	var parsed struct {
		Foundational float64 `json:"foundational_score"`
		Influence    float64 `json:"influence_score"`
		Difficulty   float64 `json:"difficulty_score"`
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			logging.Get(logging.CategoryContent).Warn("metadata unmarshal failed for node %d: %v", id, err)
		}
	}
	meta := model.NodeMetadata{
		FoundationalScore: orDefault(parsed.Foundational, 0.5),
		InfluenceScore:    orDefault(parsed.Influence, 0.5),
		DifficultyScore:   parsed.Difficulty,
		QuranOrder:        n.QuranOrder,
	}
	return meta, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// GetKnowledgeNode resolves a knowledge node's axis and base content node,
// both carried in the node's metadata JSON (axis, base_verse_key) rather
// than as dedicated columns, since only knowledge nodes have them.
func (s *Store) GetKnowledgeNode(id model.NodeID) (model.KnowledgeNode, error) {
	n, err := s.GetNode(id)
	if err != nil {
		return model.KnowledgeNode{}, err
	}
	if n.Type != model.NodeKnowledge {
		return model.KnowledgeNode{}, fmt.Errorf("content: node %d is not a knowledge node (type=%s)", id, n.Type)
	}

	var raw string
	if err := s.db.QueryRow(`SELECT metadata FROM nodes WHERE id = ?`, int64(id)).Scan(&raw); err != nil {
		return model.KnowledgeNode{}, fmt.Errorf("content: get knowledge metadata %d: %w", id, err)
	}
	var parsed struct {
		Axis          string `json:"axis"`
		BaseVerseKey  string `json:"base_verse_key"`
		BaseNodeID    int64  `json:"base_node_id"`
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return model.KnowledgeNode{}, fmt.Errorf("content: unmarshal knowledge metadata %d: %w", id, err)
		}
	}

	baseID := model.NodeID(parsed.BaseNodeID)
	if baseID == 0 && parsed.BaseVerseKey != "" {
		base, err := s.GetNodeByUkey(parsed.BaseVerseKey)
		if err != nil {
			return model.KnowledgeNode{}, fmt.Errorf("content: resolve base node for %d: %w", id, err)
		}
		baseID = base.ID
	}

	return model.KnowledgeNode{Node: n, BaseNodeID: baseID, Axis: model.Axis(parsed.Axis)}, nil
}

// GetGoalMembers returns the knowledge-node members of a goal.
func (s *Store) GetGoalMembers(goalID string) ([]model.NodeID, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetGoalMembers")
	defer timer.Stop()

	rows, err := s.db.Query(`SELECT node_id FROM goal_members WHERE goal_id = ?`, goalID)
	if err != nil {
		return nil, fmt.Errorf("content: get goal members %s: %w", goalID, err)
	}
	defer rows.Close()

	var members []model.NodeID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("content: scan goal member: %w", err)
		}
		members = append(members, model.NodeID(id))
	}
	return members, rows.Err()
}

// GetVerseText returns the text of a verse by its verse key.
func (s *Store) GetVerseText(verseKey string) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM verses WHERE verse_key = ?`, verseKey).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("content: get verse text %s: %w", verseKey, err)
	}
	return text, nil
}

// GetVersesBatch returns the text of many verses in a single query,
// keyed by verse key; missing keys are simply absent from the result.
func (s *Store) GetVersesBatch(verseKeys []string) (map[string]string, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetVersesBatch")
	defer timer.Stop()

	result := make(map[string]string, len(verseKeys))
	if len(verseKeys) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(verseKeys)), ",")
	args := make([]interface{}, len(verseKeys))
	for i, k := range verseKeys {
		args[i] = k
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT verse_key, text FROM verses WHERE verse_key IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("content: get verses batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, text string
		if err := rows.Scan(&k, &text); err != nil {
			return nil, fmt.Errorf("content: scan verse: %w", err)
		}
		result[k] = text
	}
	return result, rows.Err()
}

// GetWordsForVerse returns the ordered words of a verse.
func (s *Store) GetWordsForVerse(verseKey string) ([]Word, error) {
	rows, err := s.db.Query(`SELECT position, text, root FROM words WHERE verse_key = ? ORDER BY position`, verseKey)
	if err != nil {
		return nil, fmt.Errorf("content: get words for verse %s: %w", verseKey, err)
	}
	defer rows.Close()

	var words []Word
	for rows.Next() {
		var w Word
		var root sql.NullString
		if err := rows.Scan(&w.Position, &w.Text, &root); err != nil {
			return nil, fmt.Errorf("content: scan word: %w", err)
		}
		w.Root = root.String
		words = append(words, w)
	}
	return words, rows.Err()
}

// GetWordsBatch returns words for many verses in one query, keyed by
// verse key.
func (s *Store) GetWordsBatch(verseKeys []string) (map[string][]Word, error) {
	timer := logging.StartTimer(logging.CategoryContent, "GetWordsBatch")
	defer timer.Stop()

	result := make(map[string][]Word, len(verseKeys))
	if len(verseKeys) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(verseKeys)), ",")
	args := make([]interface{}, len(verseKeys))
	for i, k := range verseKeys {
		args[i] = k
	}

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT verse_key, position, text, root FROM words WHERE verse_key IN (%s) ORDER BY verse_key, position`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("content: get words batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var verseKey string
		var w Word
		var root sql.NullString
		if err := rows.Scan(&verseKey, &w.Position, &w.Text, &root); err != nil {
			return nil, fmt.Errorf("content: scan word batch: %w", err)
		}
		w.Root = root.String
		result[verseKey] = append(result[verseKey], w)
	}
	return result, rows.Err()
}

// GetWordAtPosition returns a single word by (verse, position).
func (s *Store) GetWordAtPosition(verseKey string, position int) (Word, error) {
	var w Word
	var root sql.NullString
	err := s.db.QueryRow(`SELECT position, text, root FROM words WHERE verse_key = ? AND position = ?`, verseKey, position).
		Scan(&w.Position, &w.Text, &root)
	if err == sql.ErrNoRows {
		return Word{}, ErrNotFound
	}
	if err != nil {
		return Word{}, fmt.Errorf("content: get word at position: %w", err)
	}
	w.Root = root.String
	return w, nil
}

// GetTranslation returns a verse's translated text for a given language.
func (s *Store) GetTranslation(verseKey, language string) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM translations WHERE verse_key = ? AND language = ?`, verseKey, language).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("content: get translation: %w", err)
	}
	return text, nil
}

// Word is a single word occurrence within a verse.
type Word struct {
	Position int
	Text     string
	Root     string
}
