// Package metadata merges caller metadata with the provenance fields derived
// from chunking. Provenance keys are reserved and always win.
package metadata

import (
	"fmt"

	"qvrag/internal/domain"
)

// Reserved keys written by the merger.
const (
	KeySource      = "source"
	KeyChunkIndex  = "chunk_index"
	KeyStartOffset = "start_offset"
	KeyEndOffset   = "end_offset"
	KeyFormat      = "format"

	// ShadowPrefix prefixes a caller value displaced by a reserved key.
	ShadowPrefix = "caller_"
)

var reserved = []string{KeySource, KeyChunkIndex, KeyStartOffset, KeyEndOffset, KeyFormat}

// IsReserved reports whether key is owned by the merger.
func IsReserved(key string) bool {
	for _, r := range reserved {
		if r == key {
			return true
		}
	}
	return false
}

// Provenance holds the fields derived for one chunk.
type Provenance struct {
	Source     string
	ChunkIndex int
	Start      int
	End        int
	Format     domain.Format
}

// FromChunk derives provenance from a chunk.
func FromChunk(c domain.Chunk, format domain.Format) Provenance {
	return Provenance{
		Source:     c.Source,
		ChunkIndex: c.Index,
		Start:      c.Start,
		End:        c.End,
		Format:     format,
	}
}

// Merge returns a new record holding the caller's keys and the provenance keys.
// A caller value under a reserved key that differs from the derived one moves to
// caller_<key>, or caller_<key>_2, caller_<key>_3 and so on when that key is taken
// by a different value. Neither input is modified.
func Merge(p Provenance, caller domain.Metadata) domain.Metadata {
	derived := p.fields()
	out := make(domain.Metadata, len(caller)+len(derived))
	for k, v := range caller {
		out[k] = v
	}
	for k, dv := range derived {
		if v, ok := caller[k]; ok && !domain.ValuesEqual(v, dv) {
			shadow(out, k, v)
		}
		out[k] = dv
	}
	return out
}

// shadow stores v under the first free caller_<key> variant. A variant already
// holding v counts as free, so merging twice adds nothing.
func shadow(out domain.Metadata, key string, v any) {
	name := ShadowPrefix + key
	for n := 2; ; n++ {
		cur, taken := out[name]
		if !taken {
			out[name] = v
			return
		}
		if domain.ValuesEqual(cur, v) {
			return
		}
		name = fmt.Sprintf("%s%s_%d", ShadowPrefix, key, n)
	}
}

func (p Provenance) fields() domain.Metadata {
	f := domain.Metadata{
		KeySource:      p.Source,
		KeyChunkIndex:  p.ChunkIndex,
		KeyStartOffset: p.Start,
		KeyEndOffset:   p.End,
	}
	if p.Format != "" {
		f[KeyFormat] = string(p.Format)
	}
	return f
}
