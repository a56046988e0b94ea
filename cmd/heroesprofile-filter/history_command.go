package main

import (
	"context"
	"fmt"
	"io"

	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/constants"
	fxmodules "heroesprofile-filter/internal/fx"
	"heroesprofile-filter/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newHistoryCommand(flags *config.Flags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the results of previous runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return runHistory(cmd.Context(), cmd.OutOrStdout(), *flags, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", constants.HistoryDefaultLimit, "Number of runs to show")
	return cmd
}

func runHistory(ctx context.Context, out io.Writer, flags config.Flags, limit int) error {
	var repo *repository.HistoryRepository
	stop, err := startApp(ctx,
		fx.Supply(flags),
		fxmodules.Base,
		fx.Populate(&repo),
	)
	if err != nil {
		return err
	}
	defer stop()

	runs, err := repo.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	fmt.Fprintln(out, renderHistory(runs))
	return nil
}
