package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/api"
	"github.com/fieldcrew/p4p-engine/p4p"
)

func (c *cli) newRecalcCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate every completed job and record the run",
		Long: `Recalculate pay for every completed job, the same batch the server's
scheduler runs. The run is recorded and shows up under /api/recalc/runs.
Exits non-zero when any job failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			run, summary, err := app.Handler.Recalc.RunNow(cmd.Context(), api.TriggerCLI)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s %s in %s\n", run.ID, run.Status, summary.Duration)
			fmt.Fprintf(out, "total %d  succeeded %d  skipped %d  failed %d\n",
				summary.Total, summary.Succeeded, summary.Skipped, summary.Failed)

			if verbose || summary.Failed > 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "JOB\tSTATUS\tASSIGNMENTS\tDETAIL")
				for _, o := range summary.Jobs {
					if !verbose && o.Status != p4p.JobFailed {
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.JobID, o.Status, o.Assignments, o.Error)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every job")
	return cmd
}
