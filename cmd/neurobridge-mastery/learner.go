package main

import (
	"github.com/spf13/cobra"
)

func newDueCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the skills a learner should review now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			due, err := a.Engine.Memory.GetConceptsDueForReview(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(cmd, due)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "learner id (default learner when empty)")
	return cmd
}

func newReportCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a learner's mastery report and insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			report, err := a.Engine.Mastery.MasteryReport(ctx, user)
			if err != nil {
				return err
			}
			insights, err := a.Engine.Ranker.Insights(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"mastery": report, "insights": insights})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "learner id (default learner when empty)")
	return cmd
}
