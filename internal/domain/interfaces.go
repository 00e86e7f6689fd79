package domain

import (
	"context"
	"iter"
)

// Metadata is a key/value record attached to a chunk for filtering and provenance.
// Values are scalars: string, bool, or a number.
type Metadata map[string]any

// Clone returns a shallow copy of the record. A nil record clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is a named raw-text payload handed to ingestion.
type Document struct {
	Source   string
	Text     string
	Format   Format
	Metadata Metadata
}

// Chunk is a contiguous segment of a source text. Offsets are in runes.
type Chunk struct {
	Source string
	Index  int
	Start  int
	End    int
	Text   string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int { return c.End - c.Start }

// Record is what gets written to a vector store: one chunk, its id and merged metadata.
type Record struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Where is a flat equality filter over metadata. Every key must match.
type Where map[string]any

// QueryRequest describes one similarity search against a vector store.
type QueryRequest struct {
	Text  string
	TopK  int
	Where Where
	// Contains, when set, keeps only chunks whose text contains the substring.
	Contains string
}

// QueryResult is one nearest-neighbor chunk. Lower distance is a better match.
type QueryResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float64
}

// CollectionInfo summarizes a vector store collection.
type CollectionInfo struct {
	Name  string
	Count int
}

// Chunker splits a source text into overlapping chunks.
type Chunker interface {
	Chunks(source, text string) iter.Seq[Chunk]
}

// Loader turns a raw payload of one format into linear text.
type Loader interface {
	Format() Format
	Load(data []byte) (string, error)
}

// Embedder converts texts into vectors.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the external collaborator that embeds, indexes and searches chunks.
// Add is an upsert: writing an existing id replaces it.
type VectorStore interface {
	Add(ctx context.Context, records ...Record) error
	Query(ctx context.Context, req QueryRequest) ([]QueryResult, error)
	Delete(ctx context.Context, where Where) (int, error)
	Info(ctx context.Context) (CollectionInfo, error)
	Close() error
}
