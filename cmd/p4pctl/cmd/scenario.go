package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/api"
)

func (c *cli) newScenarioCmd() *cobra.Command {
	scenario := &cobra.Command{
		Use:   "scenario",
		Short: "List or load demo scenarios",
	}

	scenario.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tJOB TYPE\tDESCRIPTION")
			for _, s := range api.Scenarios() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.JobType, s.Description)
			}
			return tw.Flush()
		},
	})

	scenario.AddCommand(&cobra.Command{
		Use:   "load [scenario_id]",
		Short: "Write a demo scenario to the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Handler.ApplyScenario(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("loaded %s into %s store\n", args[0], app.Config.Store.Driver)
			return nil
		},
	})
	return scenario
}
