package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the processed-files ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.coordinator.Records(cmd.Context())
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "Ledger %s is empty\n", a.coordinator.LedgerPath())
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				processed := ""
				if !rec.ProcessedAt.IsZero() {
					processed = rec.ProcessedAt.Local().Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{shortDigest(rec.ContentDigest), rec.FileName, processed})
			}
			fmt.Fprintln(out, renderTable([]string{"Digest", "File", "Processed"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
