package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"qvrag/internal/domain"
	"qvrag/internal/summarizer"
	"qvrag/internal/tui"
)

type queryOptions struct {
	topK     int
	where    []string
	contains string
	output   string
	digest   int
}

func newQueryCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Return the chunks nearest to a query",
		Long: `Query the collection and print the nearest chunks, best match first.

Examples:
  qvrag query "how do I rotate keys"
  qvrag query "install" --where source=README.md -k 3
  qvrag query "retry" --contains backoff --output json
  qvrag query "deploy steps" --digest 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := parsePairs(opts.where)
			if err != nil {
				return err
			}
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.Query(cmd.Context(), domain.QueryRequest{
				Text:     strings.Join(args, " "),
				TopK:     opts.topK,
				Where:    domain.Where(where),
				Contains: opts.contains,
			})
			if err != nil {
				return err
			}
			if err := printResults(cmd.OutOrStdout(), res, opts.output); err != nil {
				return err
			}
			if opts.digest > 0 && len(res) > 0 && opts.output != "json" {
				fmt.Fprintf(cmd.OutOrStdout(), "\ndigest: %s\n", summarizer.Digest(res, opts.digest))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringArrayVarP(&opts.where, "where", "w", nil, "Metadata filter key=value; all must match (repeatable)")
	cmd.Flags().StringVar(&opts.contains, "contains", "", "Only chunks whose text contains this substring")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json")
	cmd.Flags().IntVar(&opts.digest, "digest", 0, "Also print an extractive digest of up to N sentences from the results")
	return cmd
}

type jsonResult struct {
	ID       string          `json:"id"`
	Distance float64         `json:"distance"`
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata"`
}

func printResults(w io.Writer, res []domain.QueryResult, format string) error {
	switch format {
	case "json":
		out := make([]jsonResult, len(res))
		for i, r := range res {
			out[i] = jsonResult{ID: r.ID, Distance: r.Distance, Text: r.Text, Metadata: r.Metadata}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text", "":
		if len(res) == 0 {
			fmt.Fprintln(w, "no results")
			return nil
		}
		for i, r := range res {
			fmt.Fprintf(w, "%d. distance=%.4f  %s\n", i+1, r.Distance, tui.FormatMetadata(r.Metadata))
			fmt.Fprintf(w, "   %s\n", strings.ReplaceAll(r.Text, "\n", "\n   "))
		}
		return nil
	default:
		return domain.Errorf(domain.ErrInvalidConfiguration, "print results", "", "unknown output format %q", format)
	}
}
