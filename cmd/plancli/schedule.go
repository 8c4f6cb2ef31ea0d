package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/spf13/cobra"
)

func (c *cli) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview generated schedules",
	}

	var (
		category   string
		difficulty string
		weekdays   []string
		start      string
	)
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Generate the first workflow of a new enrollment without storing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := plan.Enrollment{
				Category:   plan.Category(category),
				Difficulty: plan.Difficulty(difficulty),
				Weekdays:   nil,
				StartDate:  time.Time{},
			}
			for _, name := range weekdays {
				d, err := plan.ParseWeekday(name)
				if err != nil {
					return err
				}
				e.Weekdays = append(e.Weekdays, d)
			}
			if start != "" {
				var err error
				if e.StartDate, err = time.Parse(time.DateOnly, start); err != nil {
					return fmt.Errorf("%w: start must be formatted as YYYY-MM-DD", plan.ErrInvalidParameters)
				}
			}

			session, schedule, err := c.preview(cmd.Context(), e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template %s, %d workouts\n", session.TemplateID, len(schedule))
			return writeSchedule(cmd.OutOrStdout(), schedule)
		},
	}
	flags := preview.Flags()
	flags.StringVar(&category, "category", string(plan.CategoryGeneral), "program category")
	flags.StringVar(&difficulty, "difficulty", string(plan.DifficultyBeginner), "experience level")
	flags.StringSliceVar(&weekdays, "weekdays", []string{"mon", "wed", "fri"}, "training weekdays")
	flags.StringVar(&start, "start", "", "first day as YYYY-MM-DD, defaults to today")

	cmd.AddCommand(preview)
	return cmd
}

// preview enrolls into a throwaway in-memory database and returns the resulting schedule.
func (c *cli) preview(ctx context.Context, e plan.Enrollment) (_ plan.Session, _ []plan.ScheduledWorkout, err error) {
	svc, closeFn, err := c.openService(ctx, ":memory:", true)
	if err != nil {
		return plan.Session{}, nil, err
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()
	session, err := svc.Enroll(ctx, e)
	if err != nil {
		return plan.Session{}, nil, err
	}
	schedule, err := svc.Schedule(ctx, session.ID)
	if err != nil {
		return plan.Session{}, nil, err
	}
	return session, schedule, nil
}

func writeSchedule(w io.Writer, schedule []plan.ScheduledWorkout) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // column padding
	fmt.Fprintln(tw, "DATE\tDAY\tWEEK\tTYPE\tSTATUS\tTITLE")
	for _, s := range schedule {
		status := "open"
		switch {
		case s.Completed:
			status = "done"
		case s.Locked:
			status = "locked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.Date.Format(time.DateOnly), s.Date.Weekday().String()[:3], s.Week, s.Type, status, s.Title)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}
