package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"qvrag/internal/domain"
	"qvrag/internal/engine"
	"qvrag/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	var (
		topK  int
		where []string
	)
	cmd := &cobra.Command{
		Use:   "tui [paths...]",
		Short: "Ingest the given paths, then search interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parsePairs(where)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if len(args) > 0 {
				paths, err := engine.ExpandPaths(args)
				if err != nil {
					return err
				}
				report, _ := eng.AddFiles(ctx, paths, nil, "")
				if len(report.Failed()) == len(report.Sources) && len(report.Sources) > 0 {
					return report.Err()
				}
			}
			info, err := eng.Info(ctx)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("collection %s: %d chunks", info.Name, info.Count)

			m := tui.New(ctx, eng, topK, domain.Where(filter), summary)
			_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Results per query")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Metadata filter key=value applied to every query (repeatable)")
	return cmd
}
