package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	app := newAppContext()

	rootCmd := &cobra.Command{
		Use:           "pkginstall",
		Short:         "Atomic, rollback-capable package installer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			return app.ensure(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level for CLI output (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Shorthand for --log-level=debug")
	rootCmd.PersistentFlags().BoolVar(&app.quiet, "quiet", false, "Shorthand for --log-level=error")
	rootCmd.PersistentFlags().StringVar(&app.format, "format", "console", "Output format for list/validate: console or json")

	rootCmd.AddCommand(newInstallCommand(app))
	rootCmd.AddCommand(newRollbackCommand(app))
	rootCmd.AddCommand(newListCommand(app))
	rootCmd.AddCommand(newCleanupCommand(app))
	rootCmd.AddCommand(newCreateTemplateCommand(app))
	rootCmd.AddCommand(newValidateCommand(app))
	rootCmd.AddCommand(newStatusCommand(app))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
