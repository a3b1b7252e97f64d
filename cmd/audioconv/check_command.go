package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audioconv/internal/deps"
	"audioconv/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tools and directory access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			}

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				detail := s.Detail
				if s.Available && detail == "" {
					detail = s.Command
				}
				rows = append(rows, []string{s.Name, s.Description, yesNo(s.Available), yesNo(!s.Optional), detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Purpose", "Available", "Required", "Detail"}, rows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows = rows[:0]
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			missing := deps.Missing(statuses)
			failed := preflight.Failed(results)
			if len(missing) > 0 || len(failed) > 0 {
				return fmt.Errorf("%d dependency and %d directory check(s) failed", len(missing), len(failed))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
