package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkginstall/internal/manifest"
)

func newValidateCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate <manifest-file>",
		Short:       "Parse and schema-validate a manifest without touching the journal",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
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

			if app.wantsJSON() {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(m)
			}

			headers := []string{"Stage", "Steps"}
			rows := [][]string{
				{"pre_install", fmt.Sprintf("%d", len(m.PreInstall))},
				{"install_steps", fmt.Sprintf("%d", len(m.InstallSteps))},
				{"post_install", fmt.Sprintf("%d", len(m.PostInstall))},
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", m.Package.Name, m.Package.Version)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
