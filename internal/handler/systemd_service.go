package handler

import (
	"context"
	"fmt"
	"os/exec"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// SystemdServiceHandler drives systemctl on behalf of systemd_service steps.
type SystemdServiceHandler struct{}

// NewSystemdServiceHandler returns the systemd_service step handler.
func NewSystemdServiceHandler() *SystemdServiceHandler { return &SystemdServiceHandler{} }

func (h *SystemdServiceHandler) Kind() manifest.StepKind { return manifest.StepSystemdService }

func (h *SystemdServiceHandler) Forward(ctx context.Context, step manifest.Step) (Result, error) {
	spec := step.SystemdService
	if spec == nil {
		return Result{}, fmt.Errorf("systemd_service step missing payload")
	}
	if err := runSystemctl(ctx, spec.Action, spec.Service); err != nil {
		return Result{}, fmt.Errorf("systemctl %s %s: %w", spec.Action, spec.Service, err)
	}
	return Result{Outcome: Reversed, Detail: fmt.Sprintf("systemctl %s %s", spec.Action, spec.Service)}, nil
}

// complementaryAction maps an action to its reverse per spec.md §4.6.
var complementaryAction = map[string]string{
	"enable":  "disable",
	"disable": "enable",
	"start":   "stop",
	"stop":    "start",
}

func (h *SystemdServiceHandler) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error) {
	spec := step.SystemdService
	if spec == nil {
		return Result{}, fmt.Errorf("systemd_service step missing payload")
	}

	if spec.Action == "restart" {
		if snap == nil || snap.Service == nil {
			return Result{Outcome: NoOp, Detail: "restart has no rollback without a recorded pre-state"}, nil
		}
		desired := "stop"
		if snap.Service.WasActive {
			desired = "start"
		}
		if err := runSystemctl(ctx, desired, spec.Service); err != nil {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("restored pre-restart active state via systemctl %s", desired)}, nil
	}

	reverse, ok := complementaryAction[spec.Action]
	if !ok {
		return Result{Outcome: NoOp, Detail: fmt.Sprintf("action %q has no complementary rollback", spec.Action)}, nil
	}
	if err := runSystemctl(ctx, reverse, spec.Service); err != nil {
		return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
	}
	return Result{Outcome: Reversed, Detail: fmt.Sprintf("systemctl %s %s", reverse, spec.Service)}, nil
}

func runSystemctl(ctx context.Context, action, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", action, service)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}
