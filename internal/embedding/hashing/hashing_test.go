package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"Vector stores index chunks", "Vector stores index chunks"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 64)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, dot(vecs[0], vecs[0]), 1e-5)
}

func TestEmbedRanksSharedVocabularyHigher(t *testing.T) {
	e := NewEmbedder(DefaultDimensions)
	vecs, err := e.Embed(context.Background(), []string{
		"the quick brown fox jumps",
		"a quick brown fox",
		"tax returns are due in april",
	})
	require.NoError(t, err)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestEmbedStopwordsOnlyGivesZeroVector(t *testing.T) {
	e := NewEmbedder(16)
	vecs, err := e.Embed(context.Background(), []string{"the and of", ""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vecs[0])
	assert.Equal(t, make([]float32, 16), vecs[1])
}

func TestEmbedHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaults(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, "hashing", e.Name())
}
