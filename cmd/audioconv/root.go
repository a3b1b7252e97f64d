package main

import (
	"github.com/spf13/cobra"

	"audioconv/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var overrides config.Overrides
	var dryRun bool

	ctx := newCommandContext(&configFlag, &overrides)

	rootCmd := &cobra.Command{
		Use:           "audioconv",
		Short:         "Convert a music library into a mirrored tree of encoded files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runConversion(cmd.Context(), cmd, cfg, dryRun)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().StringVarP(&overrides.From, "from", "f", "", "Input directory (overrides config)")
	rootCmd.Flags().StringVarP(&overrides.To, "to", "t", "", "Output directory (overrides config)")
	rootCmd.Flags().IntVarP(&overrides.Jobs, "jobs", "j", 0, "Concurrent conversions (default: CPU count)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List planned conversions without running them")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
