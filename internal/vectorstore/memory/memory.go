package memory

import (
	"context"
	"sync"

	"qvrag/internal/domain"
	"qvrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine distance.
// Contents live for the lifetime of the process.
type Storage struct {
	mu       sync.RWMutex
	name     string
	embedder domain.Embedder
	ids      map[string]int
	entries  []entry
	seq      int64
}

type entry struct {
	record domain.Record
	vector []float32
	seq    int64
}

var _ domain.VectorStore = (*Storage)(nil)

func NewStorage(name string, embedder domain.Embedder) *Storage {
	return &Storage{name: name, embedder: embedder, ids: make(map[string]int)}
}

// Add embeds and upserts records. Replacing an id keeps its original position.
func (s *Storage) Add(ctx context.Context, records ...domain.Record) error {
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
	for i, r := range records {
		r.Metadata = domain.NormalizeMetadata(r.Metadata.Clone())
		if j, ok := s.ids[r.ID]; ok {
			s.entries[j].record = r
			s.entries[j].vector = vecs[i]
			continue
		}
		s.seq++
		s.ids[r.ID] = len(s.entries)
		s.entries = append(s.entries, entry{record: r, vector: vecs[i], seq: s.seq})
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryResult, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty {
		return []domain.QueryResult{}, nil
	}

	vecs, err := vectorstore.EmbedTexts(ctx, s.embedder, []string{req.Text})
	if err != nil {
		return nil, err
	}
	query := vecs[0]

	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]vectorstore.Scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !vectorstore.Match(req, e.record.Text, e.record.Metadata) {
			continue
		}
		candidates = append(candidates, vectorstore.Scored{
			Result: domain.QueryResult{
				ID:       e.record.ID,
				Text:     e.record.Text,
				Metadata: e.record.Metadata.Clone(),
				Distance: vectorstore.CosineDistance(query, e.vector),
			},
			Seq: e.seq,
		})
	}
	return vectorstore.Rank(candidates, vectorstore.Limit(req.TopK)), nil
}

// Delete removes every record matching where. An empty filter clears the store.
func (s *Storage) Delete(_ context.Context, where domain.Where) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if where.Matches(e.record.Metadata) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.ids = make(map[string]int, len(kept))
	for i, e := range kept {
		s.ids[e.record.ID] = i
	}
	return removed, nil
}

func (s *Storage) Info(context.Context) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CollectionInfo{Name: s.name, Count: len(s.entries)}, nil
}

func (s *Storage) Close() error { return nil }
