package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/spf13/cobra"
)

func (c *cli) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain enrolled sessions",
	}

	var reason string
	regenerate := &cobra.Command{
		Use:   "regenerate <id>",
		Short: "Regenerate the workflow of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd.Context(), func(svc *plan.Service) error {
				w, err := svc.Regenerate(cmd.Context(), args[0], plan.RegenerationReason(reason))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "regenerated workflow %s (%s strategy, %d workouts)\n",
					w.ID, w.Strategy, len(w.Workouts))
				return nil
			})
		},
	}
	regenerate.Flags().StringVar(&reason, "reason", string(plan.ReasonManual), "regeneration reason")

	var dir string
	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session and its history into a standalone SQLite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd.Context(), func(svc *plan.Service) error {
				path, err := svc.ExportSession(cmd.Context(), args[0], dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", path)
				return nil
			})
		},
	}
	export.Flags().StringVar(&dir, "dir", ".", "directory to write the export to")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List active sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withService(cmd.Context(), func(svc *plan.Service) error {
					ids, err := svc.ActiveSessions(cmd.Context())
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show a session with its regeneration state and schedule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withService(cmd.Context(), func(svc *plan.Service) error {
					return showSession(cmd, svc, args[0])
				})
			},
		},
		regenerate,
		export,
		&cobra.Command{
			Use:   "history <id>",
			Short: "List the regenerations of a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withService(cmd.Context(), func(svc *plan.Service) error {
					records, err := svc.AdaptationHistory(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return writeHistory(cmd.OutOrStdout(), records)
				})
			},
		},
		&cobra.Command{
			Use:   "deactivate <id>",
			Short: "End a session and drop its cached workflow",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withService(cmd.Context(), func(svc *plan.Service) error {
					return svc.Deactivate(cmd.Context(), args[0])
				})
			},
		},
	)
	return cmd
}

func showSession(cmd *cobra.Command, svc *plan.Service, id string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	session, err := svc.Session(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s\n", session.ID)
	fmt.Fprintf(out, "template:    %s (%s/%s)\n", session.TemplateID, session.Category, session.Difficulty)
	fmt.Fprintf(out, "week:        %d of %d\n", session.CurrentWeek, session.DurationWeeks)
	fmt.Fprintf(out, "active:      %t\n", session.Active)
	fmt.Fprintf(out, "adaptations: %d\n", session.AdaptationCount)
	if !session.Active {
		return nil
	}

	check, err := svc.CheckRegeneration(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "workflow:    %s\n", check.WorkflowID)
	fmt.Fprintf(out, "regenerate:  %t %v\n", check.NeedsRegeneration, check.Reasons)

	schedule, err := svc.Schedule(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	return writeSchedule(out, schedule)
}

func writeHistory(w io.Writer, records []plan.AdaptationRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // column padding
	fmt.Fprintln(tw, "CREATED\tREASON\tCONSISTENCY\tEFFORT\tTREND\tPREVIOUS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\n", r.CreatedAt.Format(time.RFC3339), r.Reason,
			r.Metrics.Consistency, r.Metrics.AverageEffort, r.Metrics.ProgressTrend, r.PreviousWorkflowID)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
