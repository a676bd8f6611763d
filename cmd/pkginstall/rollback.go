package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRollbackCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <tx-id>",
		Short: "Manually reverse a transaction's completed steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requirePrivilege(); err != nil {
				return err
			}

			txID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q: %w", args[0], err)
			}

			summary, err := app.eng.RollbackByID(cmd.Context(), txID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "transaction #%d rollback: %s\n", txID, summary.Status)
			for _, result := range summary.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "  step %d (%s): %s %s\n", result.Order, result.Kind, result.Outcome, result.Detail)
			}
			return nil
		},
	}
}
