package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/spf13/cobra"
)

func (c *cli) templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List, show and validate workflow templates",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the templates of the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				catalog, err := c.catalog(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0) //nolint:mnd // column padding
				fmt.Fprintln(tw, "ID\tCATEGORY\tDIFFICULTY\tWEEKS\tNAME")
				for _, t := range catalog.Templates() {
					weeks := "ongoing"
					if !t.IsOngoing() {
						weeks = fmt.Sprint(t.DurationWeeks)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Category, t.Difficulty, weeks, t.Name)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a template as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				catalog, err := c.catalog(cmd.Context())
				if err != nil {
					return err
				}
				t, err := catalog.Template(args[0])
				if err != nil {
					return err
				}
				return plan.EncodeTemplate(cmd.OutOrStdout(), t)
			},
		},
		&cobra.Command{
			Use:   "validate <file>...",
			Short: "Validate YAML template files",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, name := range args {
					t, err := decodeTemplateFile(name)
					if err != nil {
						failed++
						fmt.Fprintf(out, "%s: %v\n", name, err)
						continue
					}
					fmt.Fprintf(out, "%s: ok (%s)\n", name, t.ID)
					for _, overlap := range plan.OverlappingRules(t) {
						fmt.Fprintf(out, "%s: warning: overlapping progression %s\n", name, overlap)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d templates invalid", failed, len(args))
				}
				return nil
			},
		},
	)
	return cmd
}

func decodeTemplateFile(name string) (_ plan.WorkflowTemplate, err error) {
	f, err := os.Open(name)
	if err != nil {
		return plan.WorkflowTemplate{}, fmt.Errorf("open template: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close template: %w", closeErr)
		}
	}()
	return plan.DecodeTemplate(f)
}
