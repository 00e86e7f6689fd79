package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the collection name and chunk count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			info, err := eng.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection: %s\nchunks:     %d\nstore:      %s\nembedder:   %s\n",
				info.Name, info.Count, a.cfg.VectorStore.Type, a.cfg.Embedder.Type)
			return nil
		},
	}
}
