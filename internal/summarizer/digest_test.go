package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qvrag/internal/domain"
)

func TestDigestPrefersFrequentTerms(t *testing.T) {
	results := []domain.QueryResult{
		{Text: "Foxes hunt at night. Weather was mild.", Distance: 0.1},
		{Text: "Red foxes hunt rodents. The sky is blue.", Distance: 0.3},
	}
	got := Digest(results, 2)
	assert.Equal(t, "Foxes hunt at night. Red foxes hunt rodents.", got)
}

func TestDigestDropsOverlapDuplicates(t *testing.T) {
	results := []domain.QueryResult{
		{Text: "Install the tool. Run it once.", Distance: 0.2},
		{Text: "Run it once. Then configure it", Distance: 0.4},
	}
	got := Digest(results, 10)
	assert.Equal(t, "Install the tool. Run it once. Then configure it", got)
}

func TestDigestEdgeCases(t *testing.T) {
	assert.Equal(t, "", Digest(nil, 3))
	assert.Equal(t, "", Digest([]domain.QueryResult{{Text: "   "}}, 3))
	assert.Equal(t, "no punctuation here", Digest([]domain.QueryResult{{Text: "no  punctuation\nhere"}}, 0))
}
