package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"reeler/internal/records"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Maintain the local record store file",
	}
	storeCmd.AddCommand(newStoreVersionCommand(ctx))
	storeCmd.AddCommand(newStoreUpgradeCommand(ctx))
	storeCmd.AddCommand(newStoreFixPathsCommand(ctx))
	return storeCmd
}

func newStoreVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the schema version of the store file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			version, exists, err := storeFileVersion(cfg.Store.Path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Store:    %s\n", cfg.Store.Path)
			if !exists {
				fmt.Fprintln(out, "Version:  (no file yet)")
			} else {
				fmt.Fprintf(out, "Version:  %s\n", version)
			}
			fmt.Fprintf(out, "Current:  %s\n", records.CurrentVersion)
			return nil
		},
	}
}

func newStoreUpgradeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Migrate a legacy store file to the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			before, exists, err := storeFileVersion(cfg.Store.Path)
			if err != nil {
				return err
			}
			if exists && before != "1" && before != records.CurrentVersion {
				return fmt.Errorf("%w: %s is at version %s, this build reads %s", records.ErrSchemaMismatch, cfg.Store.Path, before, records.CurrentVersion)
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !exists:
				fmt.Fprintf(out, "Created empty store at version %s\n", records.CurrentVersion)
			case before == records.CurrentVersion:
				fmt.Fprintf(out, "Store already at version %s\n", records.CurrentVersion)
			default:
				fmt.Fprintf(out, "Upgraded %d record(s) from version %s to %s\n", store.Len(), before, records.CurrentVersion)
			}
			return nil
		},
	}
}

func newStoreFixPathsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-paths",
		Short: "Rewrite artifact paths relative to the downloads directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			changed, err := store.FixPaths()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fixed %d path(s)\n", changed)
			return nil
		},
	}
}

func storeFileVersion(path string) (string, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read store: %w", err)
	}
	version, err := records.Version(raw)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", records.ErrSchemaMismatch, err)
	}
	return version, true, nil
}
