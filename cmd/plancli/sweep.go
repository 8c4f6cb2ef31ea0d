package main

import (
	"fmt"

	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/spf13/cobra"
)

func (c *cli) sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Regenerate every session whose workflow expired or whose performance asks for it, then prune the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd.Context(), func(svc *plan.Service) error {
				sweeper := plan.NewSweeper(svc, c.logger, c.v.GetInt(keySweepConcurrency))
				result, err := sweeper.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d, regenerated %d, failed %d, pruned %d\n",
					result.Checked, result.Regenerated, result.Failed, result.Pruned)
				if result.Failed > 0 {
					return fmt.Errorf("%d sessions failed to regenerate", result.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int(keySweepConcurrency, 4, "sessions regenerated in parallel") //nolint:mnd // default
	cobra.CheckErr(c.v.BindPFlag(keySweepConcurrency, cmd.Flags().Lookup(keySweepConcurrency)))
	return cmd
}
