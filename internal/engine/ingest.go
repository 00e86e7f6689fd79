package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"

	"qvrag/internal/domain"
	"qvrag/internal/loader"
	"qvrag/internal/metadata"
)

// SourceResult is the outcome of ingesting one source.
type SourceResult struct {
	Source string
	Format domain.Format
	Chunks int
	IDs    []string
	Err    error
}

// IngestReport lists one result per source, in input order.
type IngestReport struct {
	Sources []SourceResult
}

// Chunks returns the number of chunks written across all sources.
func (r IngestReport) Chunks() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Chunks
	}
	return n
}

// Failed returns the sources that were not ingested.
func (r IngestReport) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err joins the per-source failures, or returns nil when every source succeeded.
func (r IngestReport) Err() error { return joinFailures(r.Sources) }

// TextSource names the i-th raw text of an AddTexts batch.
func TextSource(i int) string { return fmt.Sprintf("text-%d", i) }

// AddTexts ingests in-memory payloads of one format. metadatas may be shorter
// than texts; missing entries are empty. An empty format means plain text.
// Failures are isolated per text and reported both in the report and the returned error.
func (e *Engine) AddTexts(ctx context.Context, texts []string, metadatas []domain.Metadata, format domain.Format) (IngestReport, error) {
	const op = "add texts"
	if len(metadatas) > len(texts) {
		return IngestReport{}, domain.Errorf(domain.ErrInvalidConfiguration, op, "", "%d metadata records for %d texts", len(metadatas), len(texts))
	}
	if format == "" {
		format = domain.FormatText
	}
	if _, err := loader.For(format); err != nil {
		return IngestReport{}, err
	}

	report := IngestReport{Sources: make([]SourceResult, len(texts))}
	for i, text := range texts {
		source := TextSource(i)
		var meta domain.Metadata
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		body, err := loader.LoadBytes(format, source, []byte(text))
		if err != nil {
			report.Sources[i] = e.failed(source, format, err)
			continue
		}
		report.Sources[i] = e.ingest(ctx, domain.Document{Source: source, Text: body, Format: format, Metadata: meta})
	}
	return report, report.Err()
}

// AddFile loads one file and ingests it. The format is detected from the
// extension when empty; the path becomes the chunk source.
func (e *Engine) AddFile(ctx context.Context, path string, meta domain.Metadata, format domain.Format) (SourceResult, error) {
	doc, err := loader.LoadFile(path, format)
	if err != nil {
		res := e.failed(path, format, err)
		return res, res.Err
	}
	doc.Metadata = meta
	res := e.ingest(ctx, doc)
	return res, res.Err
}

// AddFiles reads files concurrently, then writes them to the store one
// source at a time in input order. A failing file does not stop the others.
func (e *Engine) AddFiles(ctx context.Context, paths []string, meta domain.Metadata, format domain.Format) (IngestReport, error) {
	docs := make([]domain.Document, len(paths))
	loadErrs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.LoadWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				loadErrs[i] = err
				return nil
			}
			docs[i], loadErrs[i] = loader.LoadFile(path, format)
			return nil
		})
	}
	_ = g.Wait()

	report := IngestReport{Sources: make([]SourceResult, len(paths))}
	for i, path := range paths {
		if loadErrs[i] != nil {
			report.Sources[i] = e.failed(path, format, loadErrs[i])
			continue
		}
		docs[i].Metadata = meta
		report.Sources[i] = e.ingest(ctx, docs[i])
	}
	e.logger.Info("batch ingested", "sources", len(paths), "failed", len(report.Failed()), "chunks", report.Chunks())
	return report, report.Err()
}

// ingest chunks one loaded document and writes all its chunks in a single store call.
func (e *Engine) ingest(ctx context.Context, doc domain.Document) SourceResult {
	res := SourceResult{Source: doc.Source, Format: doc.Format}
	if err := ctx.Err(); err != nil {
		return e.failed(doc.Source, doc.Format, domain.WrapError(domain.ErrStoreWrite, "ingest", doc.Source, err))
	}

	var records []domain.Record
	for c := range e.chunker.Chunks(doc.Source, doc.Text) {
		records = append(records, domain.Record{
			ID:       e.newID(),
			Text:     c.Text,
			Metadata: metadata.Merge(metadata.FromChunk(c, doc.Format), doc.Metadata),
		})
	}
	e.logger.Debug("chunked source", "source", doc.Source, "runes", len([]rune(doc.Text)), "chunks", len(records))
	if len(records) == 0 {
		e.logger.Info("ingested source", "source", doc.Source, "chunks", 0)
		return res
	}

	if err := e.store.Add(ctx, records...); err != nil {
		return e.failed(doc.Source, doc.Format, domain.WrapError(domain.ErrStoreWrite, "add", doc.Source, err))
	}
	res.Chunks = len(records)
	res.IDs = make([]string, len(records))
	for i, r := range records {
		res.IDs[i] = r.ID
	}
	e.logger.Info("ingested source", "source", doc.Source, "format", doc.Format, "chunks", res.Chunks)
	return res
}

func (e *Engine) failed(source string, format domain.Format, err error) SourceResult {
	e.logger.Warn("source not ingested", "source", source, "error", err)
	return SourceResult{Source: source, Format: format, Err: err}
}

// ExpandPaths resolves glob patterns and walks directories, keeping files whose
// extension maps to a known format. Plain file paths are kept as given so an
// unsupported file is reported by ingestion rather than silently skipped.
func ExpandPaths(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidConfiguration, "expand paths", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				add(m)
				continue
			}
			var found []string
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				if _, ferr := domain.FormatFromPath(p); ferr == nil {
					found = append(found, p)
				}
				return nil
			})
			if err != nil {
				return nil, domain.WrapError(domain.ErrLoadError, "expand paths", m, err)
			}
			slices.Sort(found)
			for _, p := range found {
				add(p)
			}
		}
	}
	return out, nil
}
