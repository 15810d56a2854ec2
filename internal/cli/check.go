package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"cadence/internal/app"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and every job schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			jobs, err := app.BuildJobs(cfg, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok, %d jobs\n", configPath(), len(jobs))
			if len(jobs) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEQUENCE\tTOLERANCE\tNEXT")
			for _, j := range jobs {
				next := "never"
				if t, err := j.Seq.Next(now); err == nil {
					next = t.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.Name, j.Seq, j.Seq.Tolerance(), next)
			}
			return tw.Flush()
		},
	}
}
