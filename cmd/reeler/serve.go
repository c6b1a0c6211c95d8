package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reeler/internal/api"
	"reeler/internal/coordinator"
	"reeler/internal/history"
	"reeler/internal/logging"
)

const journalPruneInterval = 24 * time.Hour

func newServeCommand(ctx *commandContext) *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator service over the local record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			lock := flock.New(cfg.LockFilePath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire service lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another reeler service is running (lock %s)", cfg.LockFilePath())
			}
			defer func() { _ = lock.Unlock() }()

			local, err := coordinator.OpenLocal(cfg, logger)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer local.Close()

			runCtx, stop := signalContext(cmd)
			defer stop()

			server := api.NewServer(cfg, local, logger)
			if err := server.Listen(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Coordinator listening on %s\n", server.Addr())

			group, groupCtx := errgroup.WithContext(runCtx)
			group.Go(func() error {
				return server.Serve(groupCtx)
			})
			if journal := local.Journal(); journal != nil && retentionDays > 0 {
				retention := time.Duration(retentionDays) * 24 * time.Hour
				group.Go(func() error {
					pruneJournal(groupCtx, journal, retention, logger)
					return nil
				})
			}
			return group.Wait()
		},
	}

	cmd.Flags().IntVar(&retentionDays, "history-retention", 90, "Days of journal history to keep (0 keeps everything)")
	return cmd
}

// pruneJournal trims old journal rows at startup and then once a day until ctx ends.
func pruneJournal(ctx context.Context, journal *history.Journal, retention time.Duration, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "journal")
	prune := func() {
		removed, err := journal.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("journal prune failed", logging.Error(err))
			}
			return
		}
		if removed > 0 {
			logger.Info("journal pruned", logging.Int64("removed", removed))
		}
	}

	prune()
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
