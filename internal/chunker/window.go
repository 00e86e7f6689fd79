package chunker

import (
	"iter"

	"qvrag/internal/domain"
)

// Window splits text into fixed-size rune windows. Consecutive windows share
// exactly overlap runes; only the last window may be shorter than size.
type Window struct {
	size    int
	overlap int
}

// NewWindow validates 0 <= overlap < size.
func NewWindow(size, overlap int) (*Window, error) {
	if size <= 0 {
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "new chunker", "", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "new chunker", "", "chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "new chunker", "", "chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Window{size: size, overlap: overlap}, nil
}

// Size returns the window width in runes.
func (w *Window) Size() int { return w.size }

// Overlap returns the shared width between neighbours in runes.
func (w *Window) Overlap() int { return w.overlap }

// Chunks yields the windows over text lazily. Each call to the returned
// sequence starts over from the beginning of the text.
func (w *Window) Chunks(source, text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(text)
		step := w.size - w.overlap
		for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
			end := min(start+w.size, len(runes))
			c := domain.Chunk{
				Source: source,
				Index:  idx,
				Start:  start,
				End:    end,
				Text:   string(runes[start:end]),
			}
			if !yield(c) || end == len(runes) {
				return
			}
		}
	}
}

// Split collects every chunk of text.
func (w *Window) Split(source, text string) []domain.Chunk {
	var out []domain.Chunk
	for c := range w.Chunks(source, text) {
		out = append(out, c)
	}
	return out
}

// Count returns how many chunks text produces without materializing them.
func (w *Window) Count(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	if n <= w.size {
		return 1
	}
	step := w.size - w.overlap
	return (n - w.overlap + step - 1) / step
}

var _ domain.Chunker = (*Window)(nil)
