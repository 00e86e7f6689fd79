// Package sqlite is a persistent vector store: chunk rows live in SQLite and
// an in-process HNSW graph is rebuilt from them on open.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"

	"qvrag/internal/domain"
	"qvrag/internal/embedding"
	"qvrag/internal/vectorstore"
)

const (
	DefaultM        = 16
	DefaultEfSearch = 64
)

// Options configures a Storage.
type Options struct {
	Path       string
	Collection string
	M          int
	EfSearch   int
}

// Storage keeps one collection of a SQLite database searchable through an HNSW graph.
// Replaced and deleted ids are dropped from the lookup maps but left in the graph.
type Storage struct {
	mu         sync.RWMutex
	db         *sql.DB
	collection string
	embedder   domain.Embedder
	graph      *hnsw.Graph[uint64]
	live       map[string]*node
	keys       map[uint64]string
	nextKey    uint64
	indexed    int
	closed     bool
}

type node struct {
	key     uint64
	seq     int64
	vector  []float32
	indexed bool
}

var _ domain.VectorStore = (*Storage)(nil)

// Open opens (creating if needed) the database at opts.Path and loads the collection.
func Open(ctx context.Context, opts Options, embedder domain.Embedder) (*Storage, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite store: empty path")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("sqlite store: empty collection name")
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps WAL mode and busy handling simple
	db.SetMaxOpenConns(1)

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = opts.M
	graph.EfSearch = opts.EfSearch
	graph.Ml = 0.25

	s := &Storage{
		db:         db,
		collection: opts.Collection,
		embedder:   embedder,
		graph:      graph,
		live:       make(map[string]*node),
		keys:       make(map[uint64]string),
	}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding BLOB NOT NULL,
			UNIQUE (collection, id)
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

func (s *Storage) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, seq, embedding FROM chunks WHERE collection = ? ORDER BY seq", s.collection)
	if err != nil {
		return fmt.Errorf("load collection %q: %w", s.collection, err)
	}
	defer rows.Close()

	dims := s.embedder.Dimensions()
	for rows.Next() {
		var (
			id  string
			seq int64
			raw []byte
		)
		if err := rows.Scan(&id, &seq, &raw); err != nil {
			return err
		}
		vec := decodeFloat32Slice(raw)
		if dims > 0 && len(vec) != dims {
			return fmt.Errorf("collection %q holds %d-dimensional vectors, embedder %s produces %d",
				s.collection, len(vec), s.embedder.Name(), dims)
		}
		s.index(id, seq, vec)
	}
	return rows.Err()
}

// index records id in the lookup maps and the graph. Caller holds the write lock.
func (s *Storage) index(id string, seq int64, vec []float32) {
	if old, ok := s.live[id]; ok {
		s.forget(id, old)
	}
	key := s.nextKey
	s.nextKey++
	n := &node{key: key, seq: seq, vector: vec}

	// zero vectors have no direction; they are only reachable by exact search
	norm := make([]float32, len(vec))
	copy(norm, vec)
	embedding.Normalize(norm)
	if !isZero(norm) {
		s.graph.Add(hnsw.MakeNode(key, norm))
		n.indexed = true
		s.indexed++
	}
	s.live[id] = n
	s.keys[key] = id
}

// forget drops id from the lookup maps. Its graph node, if any, becomes stale.
func (s *Storage) forget(id string, n *node) {
	delete(s.keys, n.key)
	delete(s.live, id)
	if n.indexed {
		s.indexed--
	}
}

func (s *Storage) Add(ctx context.Context, records ...domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.CheckIDs(records); err != nil {
		return err
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vecs, err := vectorstore.EmbedTexts(ctx, s.embedder, texts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, text, metadata, embedding) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding
		RETURNING seq`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seqs := make([]int64, len(records))
	for i, r := range records {
		meta, err := json.Marshal(domain.NormalizeMetadata(r.Metadata.Clone()))
		if err != nil {
			return fmt.Errorf("encode metadata for %q: %w", r.ID, err)
		}
		if err := stmt.QueryRowContext(ctx, s.collection, r.ID, r.Text, string(meta), encodeFloat32Slice(vecs[i])).Scan(&seqs[i]); err != nil {
			return fmt.Errorf("write %q: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for i, r := range records {
		s.index(r.ID, seqs[i], vecs[i])
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryResult, error) {
	s.mu.RLock()
	closed, empty := s.closed, len(s.live) == 0
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("store is closed")
	}
	if empty {
		return []domain.QueryResult{}, nil
	}

	vecs, err := vectorstore.EmbedTexts(ctx, s.embedder, []string{req.Text})
	if err != nil {
		return nil, err
	}
	query := vecs[0]
	k := vectorstore.Limit(req.TopK)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(req.Where) > 0 || req.Contains != "" {
		return s.filtered(ctx, req, query, k)
	}

	ids := s.approximate(query, k)
	if len(ids) < min(k, len(s.live)) {
		ids = s.allIDs()
	}
	rows, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	candidates := make([]vectorstore.Scored, 0, len(ids))
	for _, id := range ids {
		r, ok := rows[id]
		if !ok {
			continue
		}
		n := s.live[id]
		r.Distance = vectorstore.CosineDistance(query, n.vector)
		candidates = append(candidates, vectorstore.Scored{Result: r, Seq: n.seq})
	}
	return vectorstore.Rank(candidates, k), nil
}

// approximate asks the graph for k live neighbours, widening the search by the
// number of stale graph nodes.
func (s *Storage) approximate(query []float32, k int) []string {
	if s.graph.Len() == 0 {
		return nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	embedding.Normalize(q)
	if isZero(q) {
		return nil
	}
	want := min(k+s.graph.Len()-s.indexed, s.graph.Len())
	ids := make([]string, 0, k)
	for _, n := range s.graph.Search(q, want) {
		if id, ok := s.keys[n.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Storage) allIDs() []string {
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

func (s *Storage) filtered(ctx context.Context, req domain.QueryRequest, query []float32, k int) ([]domain.QueryResult, error) {
	where, args := prefilter(s.collection, req.Where, req.Contains)
	rows, err := s.db.QueryContext(ctx, "SELECT id, text, metadata FROM chunks WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("filter collection %q: %w", s.collection, err)
	}
	defer rows.Close()

	var candidates []vectorstore.Scored
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		n, ok := s.live[r.ID]
		if !ok || !vectorstore.Match(req, r.Text, r.Metadata) {
			continue
		}
		r.Distance = vectorstore.CosineDistance(query, n.vector)
		candidates = append(candidates, vectorstore.Scored{Result: r, Seq: n.seq})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.Rank(candidates, k), nil
}

func (s *Storage) fetch(ctx context.Context, ids []string) (map[string]domain.QueryResult, error) {
	out := make(map[string]domain.QueryResult, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, metadata FROM chunks WHERE collection = ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// Delete removes every chunk in the collection matching where.
func (s *Storage) Delete(ctx context.Context, where domain.Where) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	clause, args := prefilter(s.collection, where, "")
	rows, err := s.db.QueryContext(ctx, "SELECT id, text, metadata FROM chunks WHERE "+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("select for delete: %w", err)
	}
	var ids []string
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if where.Matches(r.Metadata) {
			ids = append(ids, r.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, "DELETE FROM chunks WHERE collection = ? AND id = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, s.collection, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if n, ok := s.live[id]; ok {
			s.forget(id, n)
		}
	}
	return len(ids), nil
}

func (s *Storage) Info(ctx context.Context) (domain.CollectionInfo, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", s.collection).Scan(&count)
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("count collection %q: %w", s.collection, err)
	}
	return domain.CollectionInfo{Name: s.collection, Count: count}, nil
}

// Orphans returns the number of graph nodes no longer backed by a live chunk.
func (s *Storage) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len() - s.indexed
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// prefilter builds a WHERE clause narrowing rows with json_extract and instr.
// Results still go through an exact match in Go, so clauses only ever narrow.
func prefilter(collection string, where domain.Where, contains string) (string, []any) {
	clauses := []string{"collection = ?"}
	args := []any{collection}
	for k, v := range where {
		if strings.ContainsAny(k, `"\`) {
			continue
		}
		switch x := domain.NormalizeValue(v).(type) {
		case string, int64, float64:
			clauses = append(clauses, "json_extract(metadata, ?) = ?")
			args = append(args, `$."`+k+`"`, x)
		case bool:
			b := 0
			if x {
				b = 1
			}
			clauses = append(clauses, "json_extract(metadata, ?) = ?")
			args = append(args, `$."`+k+`"`, b)
		}
	}
	if contains != "" {
		clauses = append(clauses, "instr(text, ?) > 0")
		args = append(args, contains)
	}
	return strings.Join(clauses, " AND "), args
}

func scanResult(rows *sql.Rows) (domain.QueryResult, error) {
	var (
		r    domain.QueryResult
		meta string
	)
	if err := rows.Scan(&r.ID, &r.Text, &meta); err != nil {
		return r, err
	}
	r.Metadata = domain.Metadata{}
	dec := json.NewDecoder(bytes.NewReader([]byte(meta)))
	dec.UseNumber()
	if err := dec.Decode(&r.Metadata); err != nil {
		return r, fmt.Errorf("decode metadata for %q: %w", r.ID, err)
	}
	domain.NormalizeMetadata(r.Metadata)
	return r, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func encodeFloat32Slice(f []float32) []byte {
	buf := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Slice(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
