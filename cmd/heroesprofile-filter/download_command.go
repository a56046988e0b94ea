package main

import (
	"context"
	"fmt"
	"io"

	"heroesprofile-filter/internal/config"
	fxmodules "heroesprofile-filter/internal/fx"
	"heroesprofile-filter/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newDownloadCommand(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch base listings and advanced replay data (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
}

func runDownload(ctx context.Context, out io.Writer, flags config.Flags) error {
	var downloader *service.Downloader
	stop, err := startApp(ctx,
		fx.Supply(flags),
		fxmodules.Module,
		fx.Populate(&downloader),
	)
	if err != nil {
		return err
	}
	defer stop()

	summary, err := downloader.Run(ctx)
	if len(summary.Results) > 0 {
		fmt.Fprintln(out, renderSummary(summary))
	}
	return err
}
