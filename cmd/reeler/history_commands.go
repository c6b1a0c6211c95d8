package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reeler/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		recordID int64
		kind     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded status transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := history.Open(cfg.Store.HistoryPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer journal.Close()

			events, err := journal.List(cmd.Context(), history.Filter{
				RecordID: recordID,
				Kind:     history.Kind(strings.TrimSpace(kind)),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No history")
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					strconv.FormatInt(ev.RecordID, 10),
					string(ev.Kind),
					orDash(ev.DownloadStatus),
					orDash(ev.ConverterStatus),
					orDash(ev.Host),
					ev.Detail,
				})
			}
			fmt.Fprint(out, renderTable([]column{
				{Header: "Time"},
				{Header: "ID", Numeric: true},
				{Header: "Event"},
				{Header: "Download"},
				{Header: "Converter"},
				{Header: "Host"},
				{Header: "Detail", MaxWidth: 40},
			}, rows))
			return nil
		},
	}

	cmd.Flags().Int64Var(&recordID, "id", 0, "Only show events for this record")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show events of this kind (e.g. convert_finished)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	return cmd
}
