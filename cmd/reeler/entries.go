package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reeler/internal/records"
)

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and adjust job records",
	}
	entriesCmd.AddCommand(newEntriesListCommand(ctx))
	entriesCmd.AddCommand(newEntriesShowCommand(ctx))
	entriesCmd.AddCommand(newEntriesRepeatCommand(ctx))
	return entriesCmd
}

func newEntriesListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			queue, closeQueue, err := ctx.openQueue(logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			all, err := queue.Entries(cmd.Context())
			if err != nil {
				return err
			}

			filter := make(map[string]struct{}, len(statuses))
			for _, status := range statuses {
				if status = strings.ToLower(strings.TrimSpace(status)); status != "" {
					filter[status] = struct{}{}
				}
			}

			ids := make([]int64, 0, len(all))
			for id, rec := range all {
				if matchesStatus(rec, filter) {
					ids = append(ids, id)
				}
			}
			slices.Sort(ids)

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No records")
				return nil
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rec := all[id]
				rows = append(rows, []string{
					strconv.FormatInt(id, 10),
					rec.Name,
					orDash(string(rec.DownloadStatus)),
					orDash(string(rec.ConverterStatus)),
					orDash(rec.Path),
					formatStamp(lastActivity(rec)),
				})
			}
			fmt.Fprint(out, renderTable(entryColumns, rows))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show records whose download or converter status matches (repeatable)")
	return cmd
}

var entryColumns = []column{
	{Header: "ID", Numeric: true},
	{Header: "Name", MaxWidth: 48},
	{Header: "Download"},
	{Header: "Converter"},
	{Header: "Path", MaxWidth: 56},
	{Header: "Updated"},
}

func newEntriesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			queue, closeQueue, err := ctx.openQueue(logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			rec, err := queue.Entry(cmd.Context(), id)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}

func newEntriesRepeatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repeat ID...",
		Short: "Flag records for a forced download retry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseRecordID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			queue, closeQueue, err := ctx.openQueue(logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			count, err := markRepeat(cmd.Context(), queue, ids)
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d record(s) for repeat\n", count)
			return err
		},
	}
}

// markRepeat uses the coordinator's batch operation in local mode and falls
// back to per-record merges against a remote service.
func markRepeat(ctx context.Context, queue workQueue, ids []int64) (int, error) {
	if marker, ok := queue.(repeatMarker); ok {
		return marker.MarkRepeat(ctx, ids...)
	}
	patch := map[string]any{
		"downloadStatus":   string(records.DownloadRepeat),
		"downloadFinished": nil,
	}
	var (
		count int
		errs  []error
	)
	for _, id := range ids {
		if _, err := queue.MergeEntry(ctx, id, patch); err != nil {
			errs = append(errs, fmt.Errorf("record #%d: %w", id, err))
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

func matchesStatus(rec records.Record, filter map[string]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	if _, ok := filter[string(rec.DownloadStatus)]; ok {
		return true
	}
	_, ok := filter[string(rec.ConverterStatus)]
	return ok
}

func lastActivity(rec records.Record) *time.Time {
	var latest *time.Time
	for _, ts := range []*time.Time{rec.DownloadStarted, rec.DownloadFinished, rec.ConvertingStarted, rec.LastConverterPing, rec.ConvertingFinished} {
		if ts != nil && (latest == nil || ts.After(*latest)) {
			latest = ts
		}
	}
	return latest
}

func formatStamp(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
