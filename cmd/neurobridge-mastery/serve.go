package main

import (
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and (when configured) the Temporal worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			return a.Run(ctx)
		},
	}
}
