package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) Name() string    { return "counting" }
func (c *countingEmbedder) Dimensions() int { return 1 }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestCachedOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, 8)

	first, err := c.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, first)

	second, err := c.Embed(context.Background(), []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}, {1}}, second)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"ccc"}, inner.calls[1])
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "counting", c.Name())
}

func TestCachedAllHitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, 8)
	_, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"x", "x"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 1)
}

func TestCachedEvictsOldest(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, 2)
	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(context.Background(), []string{s})
		require.NoError(t, err)
	}
	_, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 4)
}

func TestCachedPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewCached(&countingEmbedder{err: boom}, 0)
	_, err := c.Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)

	var sum float64
	w := []float32{1, 2, 3, 4}
	Normalize(w)
	for _, x := range w {
		sum += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}
