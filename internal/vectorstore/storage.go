// Package vectorstore holds the pieces shared by the vector store backends:
// cosine distance, filter matching and result ordering. Backends live in the
// memory, sqlite and qdrant subpackages and satisfy domain.VectorStore.
package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"qvrag/internal/domain"
)

// DefaultTopK is used when a request does not ask for a result count.
const DefaultTopK = 5

// Limit resolves the number of results a request asks for.
func Limit(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}

// CosineDistance returns 1 - cosine similarity. A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp rounding noise
	sim = max(-1, min(1, sim))
	return 1 - sim
}

// Match reports whether a chunk passes the metadata filter and the content filter of req.
func Match(req domain.QueryRequest, text string, meta domain.Metadata) bool {
	if req.Contains != "" && !strings.Contains(text, req.Contains) {
		return false
	}
	return req.Where.Matches(meta)
}

// Scored pairs a result with its insertion sequence so ties keep insertion order.
type Scored struct {
	Result domain.QueryResult
	Seq    int64
}

// Rank orders candidates by ascending distance, ties by insertion, and keeps the first k.
func Rank(candidates []Scored, k int) []domain.QueryResult {
	slices.SortStableFunc(candidates, func(a, b Scored) int {
		if c := cmp.Compare(a.Result.Distance, b.Result.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.QueryResult, len(candidates))
	for i, c := range candidates {
		out[i] = c.Result
	}
	return out
}

// EmbedTexts embeds texts and checks the embedder returned one vector per text
// of the size it advertises.
func EmbedTexts(ctx context.Context, e domain.Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", e.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed with %s: got %d vectors for %d texts", e.Name(), len(vecs), len(texts))
	}
	if dims := e.Dimensions(); dims > 0 {
		for _, v := range vecs {
			if len(v) != dims {
				return nil, fmt.Errorf("embed with %s: vector dimension mismatch: want %d, got %d", e.Name(), dims, len(v))
			}
		}
	}
	return vecs, nil
}

// CheckIDs rejects empty and repeated ids within one write.
func CheckIDs(records []domain.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record has empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate record id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
