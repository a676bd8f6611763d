package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"pkginstall/internal/lock"
	"pkginstall/internal/precondition"
)

func newStatusCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report host readiness: directory writability, privilege level, and lock state",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			priv := precondition.CheckPrivilege()
			fmt.Fprintf(out, "running as root: %s\n", yesNo(priv.Passed))

			for _, dir := range []struct {
				label string
				path  string
			}{
				{"state_dir", app.cfg.StateDir},
				{"snapshot_dir", app.cfg.SnapshotDir},
				{"log_dir", app.cfg.LogDir},
				{"playbook_dir", app.cfg.PlaybookDir},
			} {
				fmt.Fprintf(out, "%s %s writable: %s\n", dir.label, dir.path, yesNo(unix.Access(dir.path, unix.W_OK) == nil))
			}

			lockPath := app.cfg.LockPath()
			if l, err := lock.TryAcquire(lockPath); err != nil {
				fmt.Fprintf(out, "advisory lock %s: busy\n", lockPath)
			} else {
				_ = l.Release()
				fmt.Fprintf(out, "advisory lock %s: free\n", lockPath)
			}

			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
