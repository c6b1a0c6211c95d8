package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reeler/internal/converter"
	"reeler/internal/downloader"
	"reeler/internal/portal"
	"reeler/internal/preflight"
	"reeler/internal/shutdown"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var noDiscovery bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Discover new portal videos and download every eligible record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequirePortal(); err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			runCtx, stop := signalContext(cmd)
			defer stop()

			queue, closeQueue, err := ctx.openQueue(logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			// Hooks report interrupted jobs, so they run before the queue closes.
			hooks := shutdown.New(logger)
			defer hooks.Run()

			session, err := portal.NewBrowserSession(cfg, logger)
			if err != nil {
				return fmt.Errorf("start browser: %w", err)
			}
			defer session.Close()

			opts := []downloader.Option{
				downloader.WithHost(hostname()),
				downloader.WithLogger(logger),
				downloader.WithHooks(hooks),
			}
			if noDiscovery {
				opts = append(opts, downloader.WithoutDiscovery())
			}
			summary, err := downloader.New(cfg, queue, session, opts...).Run(runCtx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Discovered: %d\n", summary.Discovered)
			fmt.Fprintf(out, "Downloaded: %d\n", summary.Done)
			fmt.Fprintf(out, "Broken:     %d\n", summary.Broken)
			return err
		},
	}

	cmd.Flags().BoolVar(&noDiscovery, "no-discovery", false, "Skip the portal gallery scan and only work existing records")
	return cmd
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Re-encode finished downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			runCtx, stop := signalContext(cmd)
			defer stop()

			if err := preflight.FirstFailure(preflight.RunConvert(runCtx, cfg)); err != nil {
				return err
			}

			encoder, err := converter.NewEncoder(cfg)
			if err != nil {
				return err
			}

			queue, closeQueue, err := ctx.openQueue(logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			hooks := shutdown.New(logger)
			defer hooks.Run()

			runner := converter.New(cfg, queue, encoder,
				converter.WithHost(hostname()),
				converter.WithLogger(logger),
				converter.WithHooks(hooks),
			)
			if !once {
				return runner.Run(runCtx)
			}

			processed, err := runner.RunOnce(runCtx)
			if err != nil {
				return err
			}
			if !processed {
				fmt.Fprintln(cmd.OutOrStdout(), "No record waiting for conversion")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Convert at most one record and exit")
	return cmd
}
