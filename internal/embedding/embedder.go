// Package embedding holds the embedders that turn chunk text into vectors
// and an LRU cache that sits in front of any of them.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"qvrag/internal/domain"
)

// DefaultCacheSize is the number of vectors kept when no size is configured.
const DefaultCacheSize = 1024

// Normalize scales v to unit length in place. A zero vector is left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Cached wraps an Embedder with an LRU cache keyed by text and embedder name.
// Repeated queries and re-ingested chunks skip the inner embedder.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float32]
}

var _ domain.Embedder = (*Cached)(nil)

// NewCached wraps inner with a cache of size entries.
func NewCached(inner domain.Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Len returns the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.Name()))
	return hex.EncodeToString(sum[:])
}

// Embed serves hits from the cache and sends the misses to the inner embedder in one batch.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		c.cache.Add(c.key(texts[i]), fresh[j])
	}
	return out, nil
}
