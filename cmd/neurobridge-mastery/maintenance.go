package main

import (
	"github.com/spf13/cobra"
)

func newReestimateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reestimate",
		Short: "Re-fit BKT parameters from recorded observations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			res, err := a.Engine.Mastery.ReestimateParameters(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newTrimHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trim-history",
		Short: "Drop feedback history older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			n, err := a.Engine.Feedback.TrimHistory(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"removed": n})
		},
	}
}

func newGraphSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph-sync",
		Short: "Register catalog skills and push the prerequisite graph to Neo4j",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			n, err := a.SyncGraph(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"synced": n})
		},
	}
}
