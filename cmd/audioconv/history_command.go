package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audioconv/internal/config"
	"audioconv/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var dbPath string
	var runID string

	cmd := &cobra.Command{
		Use:         "history",
		Short:       "List recent conversion runs",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := historyPath(ctx, dbPath)
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if id := strings.TrimSpace(runID); id != "" {
				jobs, err := store.Jobs(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintf(out, "No jobs recorded for run %s\n", id)
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, j := range jobs {
					rows = append(rows, []string{strconv.Itoa(j.JobID), j.RelPath, j.Codec, j.Status, firstLine(j.Error)})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "File", "Codec", "Status", "Error"}, rows, []columnAlignment{alignRight}))
				return nil
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					humanize.Time(r.StartedAt),
					runDuration(r),
					strconv.Itoa(r.Total),
					strconv.Itoa(r.Completed),
					strconv.Itoa(r.Failed),
					strconv.Itoa(r.Skipped),
					r.From,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Duration", "Total", "Done", "Failed", "Skipped", "From"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default: from config)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the jobs of one run")
	return cmd
}

// historyPath prefers an explicit flag, then the loaded config, then the
// default location. A config that fails validation still leaves the default.
func historyPath(ctx *commandContext, flagValue string) (string, error) {
	if value := strings.TrimSpace(flagValue); value != "" {
		return config.ExpandPath(value)
	}
	if cfg, err := ctx.ensureConfig(); err == nil && cfg.History.Path != "" {
		return cfg.History.Path, nil
	}
	return config.DefaultHistoryPath()
}

func runDuration(r history.Run) string {
	if !r.Finished() {
		return "-"
	}
	d := r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
	if r.Interrupted {
		d += " (interrupted)"
	}
	return d
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
