// Package summarizer builds short extractive digests of query results.
package summarizer

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"

	"qvrag/internal/domain"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// Digest picks up to maxSentences sentences from the results, ranked by the
// frequency of their words across all results and by how close their chunk
// was to the query. Sentences repeated by overlapping chunks count once.
// The selection keeps result order, then sentence order.
func Digest(results []domain.QueryResult, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 3
	}

	type sentence struct {
		text   string
		tokens []string
		weight float64
		order  int
	}
	var sentences []sentence
	seen := map[string]struct{}{}
	for _, r := range results {
		// nearer chunks weigh more; cosine distance is in [0, 2]
		weight := max(0.1, 1-r.Distance/2)
		for _, raw := range sentencePattern.FindAllString(r.Text, -1) {
			text := strings.Join(strings.Fields(raw), " ")
			if text == "" {
				continue
			}
			key := strings.ToLower(text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sentences = append(sentences, sentence{text: text, tokens: tokens(text), weight: weight, order: len(sentences)})
		}
	}
	if len(sentences) == 0 {
		return ""
	}

	// Compute word frequencies
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range s.tokens {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, s := range sentences {
		total := 0.0
		for _, tok := range s.tokens {
			total += freq[tok] / maxF
		}
		// Normalize by sentence length to avoid bias
		if n := len(s.tokens); n > 0 {
			total /= math.Sqrt(float64(n))
		}
		scores[i] = scored{i, total * s.weight}
	}
	slices.SortStableFunc(scores, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	// Keep original order among selected
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	slices.Sort(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx].text
	}
	return strings.Join(out, " ")
}

func tokens(text string) []string {
	all := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, t := range all {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
