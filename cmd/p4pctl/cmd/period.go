package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
)

func (c *cli) newPeriodCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "period [date]",
		Short: "Show the pay period containing a day (default today)",
		Long: `Show the semi-monthly pay period containing a day, with working-day
progress. Period A runs from the 11th to the 25th; period B from the 26th to
the 10th of the next month.

With --year, list all 24 periods that start in that year instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if year != 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "LABEL\tSTART\tEND\tWORKING DAYS")
				for _, p := range calendar.PeriodsForYear(year) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Label, p.Start, p.End, calendar.WorkingDaysIn(p))
				}
				return tw.Flush()
			}

			day := calendar.FromTime(time.Now())
			if len(args) == 1 {
				d, err := calendar.ParseDate(args[0])
				if err != nil {
					return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}

			s := p4p.PayPeriodSummary(day)
			fmt.Fprintf(out, "Period:    %s\n", s.Period.Label)
			fmt.Fprintf(out, "Dates:     %s to %s\n", s.Period.Start, s.Period.End)
			fmt.Fprintf(out, "Progress:  %s%% (%d of %d working days, %d remaining)\n",
				s.ProgressPercent.StringFixed(1), s.WorkingDaysElapsed, s.WorkingDaysTotal, s.WorkingDaysRemaining)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "list every period of a year")
	return cmd
}
