// Package engine ties loading, chunking and metadata merging to a vector store.
// It is the ingestion and query entry point used by the CLI and the TUI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"qvrag/internal/chunker"
	"qvrag/internal/domain"
)

// Config holds the engine options.
type Config struct {
	CollectionName string
	ChunkSize      int
	ChunkOverlap   int
	DefaultTopK    int
	// LoadWorkers bounds how many files AddFiles reads at once.
	LoadWorkers int
}

func DefaultConfig() Config {
	return Config{
		CollectionName: "default",
		ChunkSize:      1000,
		ChunkOverlap:   200,
		DefaultTopK:    5,
		LoadWorkers:    4,
	}
}

// Validate reports the first invalid option as an InvalidConfiguration error.
func (c Config) Validate() error {
	const op = "validate engine config"
	switch {
	case c.CollectionName == "":
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "collection name is empty")
	case c.ChunkSize <= 0:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "chunk size must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "chunk overlap must not be negative, got %d", c.ChunkOverlap)
	case c.ChunkOverlap >= c.ChunkSize:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	case c.DefaultTopK <= 0:
		return domain.Errorf(domain.ErrInvalidConfiguration, op, "", "default top_k must be positive, got %d", c.DefaultTopK)
	}
	return nil
}

// Engine owns a vector store handle for its whole lifetime.
type Engine struct {
	cfg     Config
	chunker domain.Chunker
	store   domain.VectorStore
	logger  *slog.Logger
	newID   func() string
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator replaces the random chunk id source.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

// New validates cfg and builds an engine over store. The engine closes the
// store when it is closed.
func New(cfg Config, store domain.VectorStore, opts ...Option) (*Engine, error) {
	if cfg.LoadWorkers <= 0 {
		cfg.LoadWorkers = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "new engine", "", "vector store is nil")
	}
	w, err := chunker.NewWindow(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		chunker: w,
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Query returns up to TopK chunks nearest to req.Text, best match first.
// A zero TopK uses the configured default.
func (e *Engine) Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryResult, error) {
	const op = "query"
	if req.TopK < 0 {
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, op, "", "top_k must be positive, got %d", req.TopK)
	}
	if req.TopK == 0 {
		req.TopK = e.cfg.DefaultTopK
	}
	res, err := e.store.Query(ctx, req)
	if err != nil {
		e.logger.Warn("query failed", "collection", e.cfg.CollectionName, "error", err)
		return nil, domain.WrapError(domain.ErrQueryError, op, e.cfg.CollectionName, err)
	}
	if len(res) > req.TopK {
		res = res[:req.TopK]
	}
	if res == nil {
		res = []domain.QueryResult{}
	}
	e.logger.Debug("query done", "results", len(res), "top_k", req.TopK)
	return res, nil
}

// Delete removes every chunk matching where and reports how many were removed.
func (e *Engine) Delete(ctx context.Context, where domain.Where) (int, error) {
	n, err := e.store.Delete(ctx, where)
	if err != nil {
		return 0, domain.WrapError(domain.ErrStoreWrite, "delete", e.cfg.CollectionName, err)
	}
	e.logger.Info("deleted chunks", "collection", e.cfg.CollectionName, "count", n)
	return n, nil
}

func (e *Engine) Info(ctx context.Context) (domain.CollectionInfo, error) {
	info, err := e.store.Info(ctx)
	if err != nil {
		return domain.CollectionInfo{}, domain.WrapError(domain.ErrQueryError, "info", e.cfg.CollectionName, err)
	}
	return info, nil
}

// Close releases the vector store.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// joinFailures collects the per-source errors of a report.
func joinFailures(results []SourceResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
