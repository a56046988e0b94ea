package main

import (
	"heroesprofile-filter/internal/config"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags config.Flags

	rootCmd := &cobra.Command{
		Use:           "heroesprofile-filter",
		Short:         "Download Heroes Profile replays for the configured battle tags",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "Configuration file path (default config.yml)")
	rootCmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Directory holding the replay cache (default .)")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")

	rootCmd.AddCommand(newDownloadCommand(&flags))
	rootCmd.AddCommand(newHistoryCommand(&flags))

	return rootCmd
}
