package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkginstall/internal/logging"
)

func newCleanupCommand(app *appContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge terminal transactions and stale log files older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = app.cfg.RetentionDays
			}

			purged, err := app.store.CleanupOldTransactions(cmd.Context(), days)
			if err != nil {
				return err
			}

			logging.CleanupOldLogs(app.logger, days, logging.RetentionTarget{
				Dir:     app.cfg.LogDir,
				Pattern: "*.log",
				Exclude: []string{app.cfg.LogFilePath()},
			})

			fmt.Fprintf(cmd.OutOrStdout(), "purged %d transaction(s) older than %d day(s)\n", purged, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (defaults to the configured retention_days)")
	return cmd
}
