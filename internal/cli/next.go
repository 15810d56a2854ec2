package cli

import (
	"fmt"
	"strings"
	"time"

	"cadence/internal/app"
	"cadence/internal/schedule"

	"github.com/spf13/cobra"
)

func newNextCmd() *cobra.Command {
	var (
		count int
		after string
	)
	cmd := &cobra.Command{
		Use:   "next [job...]",
		Short: "Print upcoming occurrences of configured jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("-n must be > 0")
			}
			from := time.Now()
			if strings.TrimSpace(after) != "" {
				t, err := time.Parse(time.RFC3339, after)
				if err != nil {
					return fmt.Errorf("--after: %w", err)
				}
				from = t
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			jobs, err := app.BuildJobs(cfg, from)
			if err != nil {
				return err
			}
			selected, err := selectJobs(jobs, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, j := range selected {
				fmt.Fprintf(out, "%s (%s)\n", j.Name, j.Seq)
				times, err := schedule.Upcoming(j.Seq, from, count)
				for _, t := range times {
					fmt.Fprintf(out, "  %s\n", t.Format(time.RFC3339))
				}
				if err != nil {
					fmt.Fprintf(out, "  (%v)\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "occurrences per job")
	cmd.Flags().StringVar(&after, "after", "", "start instant (RFC 3339, default now)")
	return cmd
}

func selectJobs(jobs []app.Job, names []string) ([]app.Job, error) {
	if len(names) == 0 {
		return jobs, nil
	}
	byName := make(map[string]app.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}
	out := make([]app.Job, 0, len(names))
	for _, n := range names {
		j, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown job %q", n)
		}
		out = append(out, j)
	}
	return out, nil
}
