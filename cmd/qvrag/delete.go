package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qvrag/internal/domain"
)

func newDeleteCmd(a *app) *cobra.Command {
	var (
		where []string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove chunks matching a metadata filter",
		Long: `Remove every chunk whose metadata matches all --where pairs.
Pass --all to empty the collection.

Examples:
  qvrag delete --where source=docs/old.md
  qvrag delete --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(where) == 0 && !all {
				return fmt.Errorf("refusing to delete without --where or --all")
			}
			filter, err := parsePairs(where)
			if err != nil {
				return err
			}
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.Delete(cmd.Context(), domain.Where(filter))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", n)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Delete every chunk in the collection")
	return cmd
}
