package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qvrag/internal/domain"
	"qvrag/internal/embedding/hashing"
	"qvrag/internal/vectorstore/memory"
)

// recordingStore remembers every Add call and can be told to fail.
type recordingStore struct {
	adds     [][]domain.Record
	addErr   error
	queryErr error
	results  []domain.QueryResult
	closed   bool
	lastReq  domain.QueryRequest
}

func (s *recordingStore) Add(_ context.Context, records ...domain.Record) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.adds = append(s.adds, records)
	return nil
}

func (s *recordingStore) Query(_ context.Context, req domain.QueryRequest) ([]domain.QueryResult, error) {
	s.lastReq = req
	return s.results, s.queryErr
}

func (s *recordingStore) Delete(context.Context, domain.Where) (int, error) { return 0, s.addErr }

func (s *recordingStore) Info(context.Context) (domain.CollectionInfo, error) {
	return domain.CollectionInfo{Name: "rec"}, s.queryErr
}

func (s *recordingStore) Close() error {
	s.closed = true
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newEngine(t *testing.T, cfg Config, store domain.VectorStore) *Engine {
	t.Helper()
	e, err := New(cfg, store, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	return e
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 10
	cfg.ChunkOverlap = 2
	return cfg
}

func TestAddTextsQuickBrownFox(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, smallConfig(), store)

	report, err := e.AddTexts(context.Background(), []string{"The quick brown fox jumps over the lazy dog"}, []domain.Metadata{{"lang": "en"}}, "")
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, 6, report.Chunks())

	require.Len(t, store.adds, 1, "one store call per source")
	records := store.adds[0]
	require.Len(t, records, 6)
	assert.Equal(t, "The quick ", records[0].Text)
	assert.Equal(t, "id-1", records[0].ID)

	prevEnd := -1
	for i, r := range records {
		assert.LessOrEqual(t, len([]rune(r.Text)), 10)
		assert.Equal(t, i, r.Metadata["chunk_index"])
		assert.Equal(t, "text-0", r.Metadata["source"])
		assert.Equal(t, "en", r.Metadata["lang"])
		assert.Equal(t, "text", r.Metadata["format"])
		start := r.Metadata["start_offset"].(int)
		if prevEnd >= 0 {
			assert.Equal(t, prevEnd-2, start)
		}
		prevEnd = r.Metadata["end_offset"].(int)
	}
	assert.Equal(t, 43, prevEnd)
}

func TestAddTextsEmptyTextWritesNothing(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, smallConfig(), store)

	report, err := e.AddTexts(context.Background(), []string{""}, nil, domain.FormatText)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Chunks())
	assert.Empty(t, store.adds)
}

func TestAddTextsFormats(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, DefaultConfig(), store)

	_, err := e.AddTexts(context.Background(), []string{`{"title":"Guide","tags":["a","b"]}`}, nil, domain.FormatJSON)
	require.NoError(t, err)
	require.Len(t, store.adds, 1)
	assert.Equal(t, "title: Guide\ntags[0]: a\ntags[1]: b", store.adds[0][0].Text)
	assert.Equal(t, "json", store.adds[0][0].Metadata["format"])

	_, err = e.AddTexts(context.Background(), []string{"x"}, nil, domain.Format("pdf"))
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestAddTextsIsolatesFailures(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, DefaultConfig(), store)

	report, err := e.AddTexts(context.Background(), []string{`{"ok":1}`, `{broken`, `{"ok":2}`}, nil, domain.FormatJSON)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrLoadError)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "text-1", failed[0].Source)
	assert.Equal(t, "text-1", domain.SourceOf(failed[0].Err))
	assert.Len(t, store.adds, 2)
	assert.Equal(t, "text-0", store.adds[0][0].Metadata["source"])
	assert.Equal(t, "text-2", store.adds[1][0].Metadata["source"])
}

func TestAddTextsMetadataLengths(t *testing.T) {
	e := newEngine(t, DefaultConfig(), &recordingStore{})
	_, err := e.AddTexts(context.Background(), []string{"a"}, []domain.Metadata{{}, {}}, "")
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	store := &recordingStore{}
	e = newEngine(t, DefaultConfig(), store)
	_, err = e.AddTexts(context.Background(), []string{"a", "b"}, []domain.Metadata{{"k": "v"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "v", store.adds[0][0].Metadata["k"])
	assert.NotContains(t, store.adds[1][0].Metadata, "k")
}

func TestReservedCallerKeysAreKept(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, DefaultConfig(), store)
	_, err := e.AddTexts(context.Background(), []string{"hello"}, []domain.Metadata{{"source": "crm", "chunk_index": 9}}, "")
	require.NoError(t, err)

	meta := store.adds[0][0].Metadata
	assert.Equal(t, "text-0", meta["source"])
	assert.Equal(t, 0, meta["chunk_index"])
	assert.Equal(t, "crm", meta["caller_source"])
	assert.Equal(t, 9, meta["caller_chunk_index"])
}

func TestStoreWriteFailure(t *testing.T) {
	store := &recordingStore{addErr: errors.New("disk full")}
	e := newEngine(t, DefaultConfig(), store)

	report, err := e.AddTexts(context.Background(), []string{"one", "two"}, nil, "")
	require.ErrorIs(t, err, domain.ErrStoreWrite)
	assert.Len(t, report.Failed(), 2)
	assert.Contains(t, err.Error(), "disk full")
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestAddFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", "<html><body><h1>Title</h1><p>Body text</p></body></html>")
	store := &recordingStore{}
	e := newEngine(t, DefaultConfig(), store)

	res, err := e.AddFile(context.Background(), path, domain.Metadata{"team": "docs"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, []string{"id-1"}, res.IDs)
	rec := store.adds[0][0]
	assert.Equal(t, "Title\nBody text", rec.Text)
	assert.Equal(t, path, rec.Metadata["source"])
	assert.Equal(t, "html", rec.Metadata["format"])
	assert.Equal(t, "docs", rec.Metadata["team"])
}

func TestAddFileErrors(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, DefaultConfig(), &recordingStore{})

	_, err := e.AddFile(context.Background(), filepath.Join(dir, "missing.txt"), nil, "")
	require.ErrorIs(t, err, domain.ErrLoadError)

	pdf := writeFile(t, dir, "paper.pdf", "%PDF")
	_, err = e.AddFile(context.Background(), pdf, nil, "")
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, pdf, domain.SourceOf(err))
}

func TestAddFilesPartialFailureKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.txt", "alpha"),
		writeFile(t, dir, "b.json", "{not json"),
		filepath.Join(dir, "missing.md"),
		writeFile(t, dir, "d.md", "# delta"),
		writeFile(t, dir, "e.txt", "echo"),
	}
	store := &recordingStore{}
	cfg := DefaultConfig()
	cfg.LoadWorkers = 3
	e := newEngine(t, cfg, store)

	report, err := e.AddFiles(context.Background(), paths, domain.Metadata{"batch": 1}, "")
	require.Error(t, err)
	require.Len(t, report.Sources, len(paths))
	for i, s := range report.Sources {
		assert.Equal(t, paths[i], s.Source)
	}
	assert.ErrorIs(t, report.Sources[1].Err, domain.ErrLoadError)
	assert.ErrorIs(t, report.Sources[2].Err, domain.ErrLoadError)
	assert.Len(t, report.Failed(), 2)
	assert.Equal(t, 3, report.Chunks())

	var sources []any
	for _, call := range store.adds {
		sources = append(sources, call[0].Metadata["source"])
		assert.Equal(t, 1, call[0].Metadata["batch"])
	}
	assert.Equal(t, []any{paths[0], paths[3], paths[4]}, sources)
}

func TestQueryEmptyStore(t *testing.T) {
	e := newEngine(t, DefaultConfig(), memory.NewStorage("default", hashing.NewEmbedder(64)))
	res, err := e.Query(context.Background(), domain.QueryRequest{Text: "anything", TopK: 3})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestQueryEndToEnd(t *testing.T) {
	e := newEngine(t, DefaultConfig(), memory.NewStorage("default", hashing.NewEmbedder(256)))
	ctx := context.Background()
	_, err := e.AddTexts(ctx, []string{
		"The quick brown fox jumps over the lazy dog",
		"Quarterly tax returns are due in April",
		"Foxes are small omnivorous mammals",
	}, []domain.Metadata{{"topic": "animals"}, {"topic": "finance"}, {"topic": "animals"}}, "")
	require.NoError(t, err)

	res, err := e.Query(ctx, domain.QueryRequest{Text: "brown fox"})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "The quick brown fox jumps over the lazy dog", res[0].Text)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}

	res, err = e.Query(ctx, domain.QueryRequest{Text: "brown fox", TopK: 5, Where: domain.Where{"topic": "finance"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "text-1", res[0].Metadata["source"])

	info, err := e.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionInfo{Name: "default", Count: 3}, info)

	n, err := e.Delete(ctx, domain.Where{"topic": "animals"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueryIsDeterministic(t *testing.T) {
	build := func() []domain.QueryResult {
		e := newEngine(t, smallConfig(), memory.NewStorage("default", hashing.NewEmbedder(128)))
		_, err := e.AddTexts(context.Background(), []string{"The quick brown fox jumps over the lazy dog"}, nil, "")
		require.NoError(t, err)
		res, err := e.Query(context.Background(), domain.QueryRequest{Text: "lazy dog", TopK: 6})
		require.NoError(t, err)
		return res
	}
	assert.Equal(t, build(), build())
}

func TestQueryTopK(t *testing.T) {
	store := &recordingStore{results: make([]domain.QueryResult, 9)}
	e := newEngine(t, DefaultConfig(), store)

	res, err := e.Query(context.Background(), domain.QueryRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 5, store.lastReq.TopK)
	assert.Len(t, res, 5)

	_, err = e.Query(context.Background(), domain.QueryRequest{Text: "x", TopK: -1})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	cause := errors.New("connection refused")
	e := newEngine(t, DefaultConfig(), &recordingStore{queryErr: cause})

	res, err := e.Query(context.Background(), domain.QueryRequest{Text: "x", TopK: 1})
	require.ErrorIs(t, err, domain.ErrQueryError)
	require.ErrorIs(t, err, cause)
	assert.Nil(t, res)

	_, err = e.Info(context.Background())
	require.ErrorIs(t, err, domain.ErrQueryError)
}

func TestNewValidatesConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"zero size":        func(c *Config) { c.ChunkSize = 0 },
		"negative overlap": func(c *Config) { c.ChunkOverlap = -1 },
		"overlap too big":  func(c *Config) { c.ChunkSize, c.ChunkOverlap = 10, 10 },
		"no collection":    func(c *Config) { c.CollectionName = "" },
		"zero top k":       func(c *Config) { c.DefaultTopK = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg, &recordingStore{})
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}

	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestCloseClosesStore(t *testing.T) {
	store := &recordingStore{}
	e := newEngine(t, DefaultConfig(), store)
	require.NoError(t, e.Close())
	assert.True(t, store.closed)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "b")
	writeFile(t, dir, "a.md", "a")
	writeFile(t, dir, "skip.bin", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "c.json", "{}")

	got, err := ExpandPaths([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "sub", "c.json"),
	}, got)

	got, err = ExpandPaths([]string{filepath.Join(dir, "*.txt"), filepath.Join(dir, "b.txt"), filepath.Join(dir, "nope.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.txt"), filepath.Join(dir, "nope.txt")}, got)
}
