package main

import (
	"github.com/spf13/cobra"
)

const (
	groupWorkers = "workers"
	groupRecords = "records"
	groupSetup   = "setup"
)

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string

	ctx := newCommandContext(&configFlag)
	ctx.logLevel = &logLevelFlag

	rootCmd := &cobra.Command{
		Use:           "reeler",
		Short:         "Download portal videos and convert them for playback",
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
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupWorkers, Title: "Workers:"},
		&cobra.Group{ID: groupRecords, Title: "Records:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	for _, sub := range []struct {
		group string
		cmd   *cobra.Command
	}{
		{groupWorkers, newServeCommand(ctx)},
		{groupWorkers, newDownloadCommand(ctx)},
		{groupWorkers, newConvertCommand(ctx)},
		{groupRecords, newEntriesCommand(ctx)},
		{groupRecords, newHistoryCommand(ctx)},
		{groupRecords, newStoreCommand(ctx)},
		{groupSetup, newConfigCommand(ctx)},
		{groupSetup, newDoctorCommand(ctx)},
	} {
		sub.cmd.GroupID = sub.group
		rootCmd.AddCommand(sub.cmd)
	}

	return rootCmd
}
