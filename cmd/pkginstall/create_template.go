package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkginstall/internal/manifest"
)

func newCreateTemplateCommand(app *appContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:         "create-template <name> <version>",
		Short:       "Emit a minimal valid manifest for a new package",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m := manifest.Template(args[0], args[1])
			data, err := manifest.Emit(m)
			if err != nil {
				return fmt.Errorf("emit template: %w", err)
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the template to this path instead of stdout")
	return cmd
}
