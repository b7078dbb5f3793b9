package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/api"
	"github.com/fieldcrew/p4p-engine/calendar"
)

func (c *cli) newReportCmd() *cobra.Command {
	var (
		dateFlag string
		pdfPath  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the payroll report for a pay period",
		Long: `Print what payroll pays each employee for the pay period containing
--date (default today). Reads stored figures only; run recalc first if they
may be stale. With --pdf, also write the report as a PDF.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := calendar.FromTime(time.Now())
			if dateFlag != "" {
				d, err := calendar.ParseDate(dateFlag)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}

			app, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Service.PayrollReport(cmd.Context(), calendar.PeriodContaining(day))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Payroll %s (%s to %s)\n\n", report.Period.Label, report.Period.Start, report.Period.End)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "EMPLOYEE\tJOBS\tP4P\tFLOOR\tINTERIM\tADJUSTMENT\tTOTAL\t")
			for _, l := range append(report.Lines, report.Totals) {
				name := l.EmployeeName
				if name == "" {
					name = string(l.EmployeeID)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
					name, l.Assignments, l.PerformancePay, l.FloorSupplement, l.InterimHourly, l.Adjustment, l.Total)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}

			if pdfPath != "" {
				pdf, err := api.RenderPayrollPDF(report)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", pdfPath, err)
				}
				fmt.Fprintf(out, "\nwrote %s\n", pdfPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "any day in the period, YYYY-MM-DD")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "also write the report to this PDF file")
	return cmd
}
