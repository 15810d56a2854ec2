package cli

import (
	"fmt"

	"cadence/internal/period"

	"github.com/spf13/cobra"
)

func newPeriodCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "period <text>...",
		Short: "Parse duration text and print its canonical form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, a := range args {
				d, err := period.Parse(a)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\t%d\n", period.Format(d), d, d.Nanoseconds())
			}
			return nil
		},
	}
}
