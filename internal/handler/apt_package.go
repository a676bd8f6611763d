package handler

import (
	"context"
	"fmt"
	"os/exec"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// AptPackageHandler drives apt-get on behalf of apt_package steps.
type AptPackageHandler struct{}

// NewAptPackageHandler returns the apt_package step handler.
func NewAptPackageHandler() *AptPackageHandler { return &AptPackageHandler{} }

func (h *AptPackageHandler) Kind() manifest.StepKind { return manifest.StepAptPackage }

func (h *AptPackageHandler) Forward(ctx context.Context, step manifest.Step) (Result, error) {
	spec := step.AptPackage
	if spec == nil {
		return Result{}, fmt.Errorf("apt_package step missing payload")
	}

	if spec.UpdateCacheOrDefault() && spec.Action != "remove" {
		if err := runAptGet(ctx, "update"); err != nil {
			return Result{}, fmt.Errorf("apt-get update: %w", err)
		}
	}

	switch spec.Action {
	case "install":
		if err := runAptGet(ctx, append([]string{"install", "-y"}, spec.Packages...)...); err != nil {
			return Result{}, fmt.Errorf("apt-get install: %w", err)
		}
	case "remove":
		if err := runAptGet(ctx, append([]string{"remove", "-y"}, spec.Packages...)...); err != nil {
			return Result{}, fmt.Errorf("apt-get remove: %w", err)
		}
	case "update":
		if err := runAptGet(ctx, "update"); err != nil {
			return Result{}, fmt.Errorf("apt-get update: %w", err)
		}
	default:
		return Result{}, fmt.Errorf("apt_package: unsupported action %q", spec.Action)
	}

	return Result{Outcome: Reversed, Detail: fmt.Sprintf("apt_package %s: %v", spec.Action, spec.Packages)}, nil
}

// Reverse implements the per-kind reversal policy from spec.md §4.6:
// installs are undone by removing everything except packages that were
// already installed before the transaction; removals are undone by
// reinstalling the packages captured in ToRemove.
func (h *AptPackageHandler) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error) {
	spec := step.AptPackage
	if spec == nil {
		return Result{}, fmt.Errorf("apt_package step missing payload")
	}
	if snap == nil || snap.Package == nil {
		return Result{Outcome: Unrecoverable, Detail: "no package snapshot available"}, nil
	}

	switch spec.Action {
	case "install":
		toRemove := subtract(spec.Packages, snap.Package.AlreadyInstalled)
		if len(toRemove) == 0 {
			return Result{Outcome: NoOp, Detail: "all packages were already installed before the transaction"}, nil
		}
		if err := runAptGet(ctx, append([]string{"remove", "-y"}, toRemove...)...); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("removed %v", toRemove)}, nil
	case "remove":
		if len(snap.Package.ToRemove) == 0 {
			return Result{Outcome: NoOp, Detail: "no packages were installed before the transaction"}, nil
		}
		if err := runAptGet(ctx, append([]string{"install", "-y"}, snap.Package.ToRemove...)...); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("reinstalled %v", snap.Package.ToRemove)}, nil
	default:
		return Result{Outcome: NoOp, Detail: fmt.Sprintf("action %q has no rollback", spec.Action)}, nil
	}
}

func subtract(all, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}
	var result []string
	for _, v := range all {
		if !excluded[v] {
			result = append(result, v)
		}
	}
	return result
}

func runAptGet(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "apt-get", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}
