package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"reeler/internal/deps"
	"reeler/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, external tools, and worker prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			configLabel := ctx.configPath
			if configLabel == "" {
				configLabel = "defaults"
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, configLabel, colorize))
			if cfg.Remote() {
				fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "remote "+cfg.Service.URL, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "local "+cfg.Store.Path, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Encoder", statusInfo, cfg.Converter.Encoder, colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			statuses := preflight.CheckSystemDeps(cfg)
			for _, status := range statuses {
				kind, message := dependencyStatus(status)
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			problems += len(deps.Missing(statuses))

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Downloader", colorize))
			if err := cfg.RequirePortal(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Portal", statusWarn, err.Error(), colorize))
			} else {
				problems += writeResults(out, preflight.RunDownload(cmd.Context(), cfg), colorize)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Converter", colorize))
			problems += writeResults(out, preflight.RunConvert(cmd.Context(), cfg), colorize)

			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			return nil
		},
	}
}

func dependencyStatus(status deps.Status) (statusKind, string) {
	if status.Available {
		return statusOK, status.Command
	}
	if status.Optional {
		return statusWarn, status.Detail
	}
	return statusError, status.Detail
}

func writeResults(out io.Writer, results []preflight.Result, colorize bool) int {
	failed := 0
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
			failed++
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return failed
}
