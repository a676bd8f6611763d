package handler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// UserManagementHandler drives useradd/userdel/usermod on behalf of
// user_management steps.
type UserManagementHandler struct{}

// NewUserManagementHandler returns the user_management step handler.
func NewUserManagementHandler() *UserManagementHandler { return &UserManagementHandler{} }

func (h *UserManagementHandler) Kind() manifest.StepKind { return manifest.StepUserManagement }

func (h *UserManagementHandler) Forward(ctx context.Context, step manifest.Step) (Result, error) {
	spec := step.UserManagement
	if spec == nil {
		return Result{}, fmt.Errorf("user_management step missing payload")
	}

	switch spec.Action {
	case "create":
		args := []string{}
		if spec.UserData != nil {
			if spec.UserData.Home != "" {
				args = append(args, "-d", spec.UserData.Home)
			}
			if spec.UserData.Shell != "" {
				args = append(args, "-s", spec.UserData.Shell)
			}
			if len(spec.UserData.Groups) > 0 {
				args = append(args, "-G", strings.Join(spec.UserData.Groups, ","))
			}
			if spec.UserData.System {
				args = append(args, "--system")
			}
		}
		args = append(args, spec.Username)
		if err := runCommand(ctx, "useradd", args...); err != nil {
			return Result{}, fmt.Errorf("useradd %s: %w", spec.Username, err)
		}
	case "remove":
		if err := runCommand(ctx, "userdel", "-r", spec.Username); err != nil {
			return Result{}, fmt.Errorf("userdel %s: %w", spec.Username, err)
		}
	case "modify":
		args := []string{}
		if spec.UserData != nil {
			if spec.UserData.Home != "" {
				args = append(args, "-d", spec.UserData.Home)
			}
			if spec.UserData.Shell != "" {
				args = append(args, "-s", spec.UserData.Shell)
			}
			if len(spec.UserData.Groups) > 0 {
				args = append(args, "-G", strings.Join(spec.UserData.Groups, ","))
			}
		}
		args = append(args, spec.Username)
		if err := runCommand(ctx, "usermod", args...); err != nil {
			return Result{}, fmt.Errorf("usermod %s: %w", spec.Username, err)
		}
	default:
		return Result{}, fmt.Errorf("user_management: unsupported action %q", spec.Action)
	}

	return Result{Outcome: Reversed, Detail: fmt.Sprintf("user_management %s %s", spec.Action, spec.Username)}, nil
}

// Reverse implements spec.md §4.6: create is undone by removing the user,
// remove is undone by recreating from the captured identity, modify is
// undone by reapplying captured attributes.
func (h *UserManagementHandler) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error) {
	spec := step.UserManagement
	if spec == nil {
		return Result{}, fmt.Errorf("user_management step missing payload")
	}
	if snap == nil || snap.User == nil {
		return Result{Outcome: Unrecoverable, Detail: "no user snapshot available"}, nil
	}

	switch spec.Action {
	case "create":
		if !userExists(ctx, spec.Username) {
			return Result{Outcome: NoOp, Detail: "user no longer exists"}, nil
		}
		if err := runCommand(ctx, "userdel", "-r", spec.Username); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("removed %s", spec.Username)}, nil
	case "remove":
		if !snap.User.Existed {
			return Result{Outcome: NoOp, Detail: "user did not exist before the transaction"}, nil
		}
		args := []string{}
		if snap.User.Home != "" {
			args = append(args, "-d", snap.User.Home)
		}
		if snap.User.Shell != "" {
			args = append(args, "-s", snap.User.Shell)
		}
		if len(snap.User.Groups) > 0 {
			args = append(args, "-G", strings.Join(snap.User.Groups, ","))
		}
		args = append(args, spec.Username)
		if err := runCommand(ctx, "useradd", args...); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("recreated %s from captured identity", spec.Username)}, nil
	case "modify":
		args := []string{}
		if snap.User.Home != "" {
			args = append(args, "-d", snap.User.Home)
		}
		if snap.User.Shell != "" {
			args = append(args, "-s", snap.User.Shell)
		}
		if len(snap.User.Groups) > 0 {
			args = append(args, "-G", strings.Join(snap.User.Groups, ","))
		}
		args = append(args, spec.Username)
		if err := runCommand(ctx, "usermod", args...); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("reapplied captured attributes to %s", spec.Username)}, nil
	default:
		return Result{Outcome: NoOp, Detail: fmt.Sprintf("action %q has no rollback", spec.Action)}, nil
	}
}

func userExists(ctx context.Context, username string) bool {
	cmd := exec.CommandContext(ctx, "id", username)
	return cmd.Run() == nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}
