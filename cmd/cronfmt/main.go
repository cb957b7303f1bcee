// Command cronfmt is a small operator utility: parse a cron expression
// with this module's own internal/cronexpr engine and print its next N
// fire times, optionally cross-checked against robfig/cron/v3 as an
// independent oracle to catch a divergence in the hand-rolled parser.
// Grounded on the teacher's cobra-based CLI shape used elsewhere in the
// example pack, not on anything in cmd/server (which has none).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
)

func main() {
	var count int
	var tz string
	var checkOracle bool

	root := &cobra.Command{
		Use:   "cronfmt <cron-expression>",
		Short: "Print the next fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("load location %q: %w", tz, err)
			}

			expr, err := cronexpr.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normalized: %s\n", expr.String())

			var oracle cron.Schedule
			if checkOracle {
				oracle, err = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(args[0])
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "oracle: robfig/cron could not parse this expression (%v) — skipping cross-check\n", err)
					checkOracle = false
				}
			}

			after := time.Now().In(loc)
			oracleAfter := after
			for i := 0; i < count; i++ {
				next, ok := expr.Next(after, loc)
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "(no further fire times)")
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, next.Format(time.RFC3339))

				if checkOracle {
					oracleNext := oracle.Next(oracleAfter)
					if !oracleNext.Equal(next) {
						fmt.Fprintf(cmd.ErrOrStderr(), "    oracle mismatch: robfig/cron says %s\n", oracleNext.Format(time.RFC3339))
					}
					oracleAfter = oracleNext
				}
				after = next
			}
			return nil
		},
	}

	root.Flags().IntVarP(&count, "count", "n", 5, "number of fire times to print")
	root.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone name to evaluate in")
	root.Flags().BoolVar(&checkOracle, "check-oracle", false, "cross-check output against robfig/cron/v3")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
