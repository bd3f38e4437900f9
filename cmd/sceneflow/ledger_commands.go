package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sceneflow/internal/ledger"
	"sceneflow/internal/scene"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and reset the download ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerResetCommand(ctx))
	return ledgerCmd
}

type ledgerRow struct {
	Scene    string `json:"scene"`
	Sensor   string `json:"sensor"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Location string `json:"location"`
	Recorded string `json:"recorded_at"`
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(cmd.Context(), func(l *ledger.Ledger) error {
				records, err := l.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					rows := make([]ledgerRow, 0, len(records))
					for _, rec := range records {
						rows = append(rows, ledgerRow{
							Scene:    rec.Key().String(),
							Sensor:   rec.Sensor,
							Filename: rec.Filename,
							Filesize: rec.Filesize,
							Location: rec.Location,
							Recorded: rec.RecordedAt.UTC().Format("2006-01-02T15:04:05Z"),
						})
					}
					return writeJSONList(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No downloads recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				var total int64
				for _, rec := range records {
					total += rec.Filesize
					rows = append(rows, []string{
						rec.Key().String(),
						rec.Sensor,
						rec.Filename,
						formatSize(rec.Filesize),
						formatWhen(rec.RecordedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Scene", "Sensor", "Archive", "Size", "Recorded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintf(out, "%d archive(s), %s\n", len(records), formatSize(total))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newLedgerResetCommand(ctx *commandContext) *cobra.Command {
	var (
		yes    bool
		keyArg string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget recorded downloads so they are fetched again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && keyArg == "" {
				return fmt.Errorf("refusing to clear the whole ledger without --yes")
			}
			return ctx.withLedger(cmd.Context(), func(l *ledger.Ledger) error {
				out := cmd.OutOrStdout()
				if keyArg == "" {
					removed, err := l.DeleteAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %d ledger record(s)\n", removed)
					return nil
				}
				key, err := scene.ParseKey(keyArg)
				if err != nil {
					return err
				}
				records, err := l.List(cmd.Context())
				if err != nil {
					return err
				}
				var removed int64
				for _, rec := range records {
					if rec.Key() != key {
						continue
					}
					n, err := l.DeleteByKey(cmd.Context(), rec.Filename, rec.Location)
					if err != nil {
						return err
					}
					removed += n
				}
				fmt.Fprintf(out, "Removed %d ledger record(s) for %s\n", removed, key)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing every record")
	cmd.Flags().StringVarP(&keyArg, "key", "k", "", "Only reset records for scene key PPPRRR_YYYYMMDD")
	return cmd
}
