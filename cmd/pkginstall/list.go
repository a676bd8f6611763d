package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(app *appContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded transactions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := app.store.ListTransactions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if app.wantsJSON() {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(txs)
			}

			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transactions recorded")
				return nil
			}

			headers := []string{"ID", "Package", "Status", "Created"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}
			rows := make([][]string, 0, len(txs))
			for _, tx := range txs {
				rows = append(rows, []string{
					fmt.Sprintf("%d", tx.ID),
					tx.PackageName,
					string(tx.Status),
					tx.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of transactions to show (0 for unbounded)")
	return cmd
}
