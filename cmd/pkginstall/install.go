package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkginstall/internal/manifest"
	"pkginstall/internal/precondition"
)

func newInstallCommand(app *appContext) *cobra.Command {
	var dryRun bool
	var force bool

	cmd := &cobra.Command{
		Use:   "install <manifest-file>",
		Short: "Install a package from a manifest, atomically and with automatic rollback on failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			m, err := manifest.Parse(data)
			if err != nil {
				return err
			}
			if err := manifest.Validate(m); err != nil {
				return err
			}

			results := precondition.RunAll(m.Requirements, true)
			for _, result := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s (%s)\n", result.Name, passFail(result.Passed), result.Detail)
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s validates cleanly (dry run, no changes made)\n", m.Package.Name, m.Package.Version)
				return nil
			}

			if err := precondition.Evaluate(results); err != nil {
				if !force {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %v (continuing because --force was given)\n", err)
			}

			ctx := cmd.Context()
			tx, err := app.eng.BeginTransaction(ctx, m)
			if err != nil {
				return err
			}

			if err := tx.ExecuteSteps(ctx); err != nil {
				return err
			}

			if err := tx.Commit(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "transaction #%d committed: %s %s\n", tx.ID(), m.Package.Name, m.Package.Version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the manifest and report precondition checks without installing")
	cmd.Flags().BoolVar(&force, "force", false, "Proceed even if a precondition check fails (schema validation is never bypassed)")
	return cmd
}

func passFail(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAILED"
}
