package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/p4p"
)

func (c *cli) newCalcCmd() *cobra.Command {
	calc := &cobra.Command{
		Use:   "calc",
		Short: "Run pay calculations",
	}

	calc.AddCommand(&cobra.Command{
		Use:   "job [job_id]",
		Short: "Recalculate one job and print each assignment's pay",
		Long: `Recalculate every assignment of a job and store the results. A completed
period-spanning job is reconciled against the interim hourly pay already
issued; the ADJUSTMENT column is what payroll still owes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.Service.CalculateForJob(cmd.Context(), p4p.JobID(args[0]))
			if err != nil {
				return err
			}
			return printResults(cmd, results)
		},
	})
	return calc
}

func printResults(cmd *cobra.Command, results []p4p.Result) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSIGNMENT\tEMPLOYEE\tOUTCOME\tPAY\tHOURLY EQ\tMINIMUM\tADJUSTMENT")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AssignmentID, r.EmployeeID, r.Outcome,
			r.PerformancePay, r.HourlyEquivalent, r.MinimumPay, r.Adjustment)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range results {
		for _, w := range r.Warnings {
			cmd.Printf("warning: %s: %s\n", r.AssignmentID, w)
		}
	}
	return nil
}
