package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// AnsiblePlaybookHandler invokes ansible-playbook on behalf of
// ansible_playbook steps. custom_script is treated as an informal synonym
// for this step kind per spec.md §9 and is not a separate code path.
type AnsiblePlaybookHandler struct {
	// PlaybookDir resolves relative playbook paths, matching the
	// configured playbook search path (spec.md §6 persistent state layout).
	PlaybookDir string
}

// NewAnsiblePlaybookHandler returns the ansible_playbook step handler.
func NewAnsiblePlaybookHandler(playbookDir string) *AnsiblePlaybookHandler {
	return &AnsiblePlaybookHandler{PlaybookDir: playbookDir}
}

func (h *AnsiblePlaybookHandler) Kind() manifest.StepKind { return manifest.StepAnsiblePlaybook }

func (h *AnsiblePlaybookHandler) Forward(ctx context.Context, step manifest.Step) (Result, error) {
	spec := step.AnsiblePlaybook
	if spec == nil {
		return Result{}, fmt.Errorf("ansible_playbook step missing payload")
	}
	if err := h.run(ctx, spec.Playbook, spec.Inventory, spec.Vars); err != nil {
		return Result{}, fmt.Errorf("ansible-playbook %s: %w", spec.Playbook, err)
	}
	return Result{Outcome: Reversed, Detail: fmt.Sprintf("ran playbook %s", spec.Playbook)}, nil
}

// Reverse runs the declared rollback_playbook with the same vars. Absent a
// rollback playbook, it returns unrecoverable per spec.md §4.6.
func (h *AnsiblePlaybookHandler) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error) {
	spec := step.AnsiblePlaybook
	if spec == nil {
		return Result{}, fmt.Errorf("ansible_playbook step missing payload")
	}
	if spec.RollbackPlaybook == "" {
		return Result{Outcome: Unrecoverable, Detail: "no rollback_playbook declared on this step"}, nil
	}

	vars := spec.Vars
	if snap != nil && snap.Ansible != nil {
		vars = snap.Ansible.Vars
	}
	if err := h.run(ctx, spec.RollbackPlaybook, spec.Inventory, vars); err != nil {
		return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
	}
	return Result{Outcome: Reversed, Detail: fmt.Sprintf("ran rollback playbook %s", spec.RollbackPlaybook)}, nil
}

func (h *AnsiblePlaybookHandler) run(ctx context.Context, playbook, inventory string, vars map[string]any) error {
	resolved := playbook
	if !filepath.IsAbs(playbook) && h.PlaybookDir != "" {
		resolved = filepath.Join(h.PlaybookDir, playbook)
	}

	args := []string{}
	if inventory != "" {
		args = append(args, "-i", inventory)
	}
	if len(vars) > 0 {
		extraVars, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("encode extra-vars: %w", err)
		}
		args = append(args, "--extra-vars", string(extraVars))
	}
	args = append(args, resolved)

	cmd := exec.CommandContext(ctx, "ansible-playbook", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}
