package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qvrag/internal/domain"
	"qvrag/internal/engine"
)

type ingestOptions struct {
	meta   []string
	format string
	text   []string
}

func newIngestCmd(a *app) *cobra.Command {
	var opts ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Chunk files or raw texts and add them to the vector store",
		Long: `Ingest files, directories or glob patterns. Directories are walked for
files with a known extension (txt, md, html, htm, json). Use --text to
ingest raw strings instead of files.

Examples:
  qvrag ingest docs/ --meta team=platform
  qvrag ingest "notes/*.md"
  qvrag ingest --text "The quick brown fox" --format text`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(opts.text) == 0 {
				return fmt.Errorf("nothing to ingest: pass paths or --text")
			}
			meta, err := parsePairs(opts.meta)
			if err != nil {
				return err
			}
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}

			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			var report engine.IngestReport
			if len(opts.text) > 0 {
				metas := make([]domain.Metadata, len(opts.text))
				for i := range metas {
					metas[i] = meta
				}
				report, _ = eng.AddTexts(cmd.Context(), opts.text, metas, format)
			} else {
				paths, err := engine.ExpandPaths(args)
				if err != nil {
					return err
				}
				report, _ = eng.AddFiles(cmd.Context(), paths, meta, format)
			}
			printReport(cmd.OutOrStdout(), report)
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d sources failed", len(failed), len(report.Sources))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&opts.meta, "meta", "m", nil, "Metadata key=value attached to every chunk (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Input format: text, markdown, html, json (default: from extension)")
	cmd.Flags().StringArrayVar(&opts.text, "text", nil, "Raw text to ingest instead of files (repeatable)")
	return cmd
}

func printReport(w io.Writer, r engine.IngestReport) {
	for _, s := range r.Sources {
		if s.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", s.Source, s.Err)
			continue
		}
		fmt.Fprintf(w, "ok   %s (%s): %d chunks\n", s.Source, s.Format, s.Chunks)
	}
	fmt.Fprintf(w, "%d chunks from %d sources, %d failed\n", r.Chunks(), len(r.Sources), len(r.Failed()))
}
