// Package rollback implements the rollback engine described in spec.md
// §4.6: given a transaction id, it reverses every completed step in
// strict descending step_order, dispatching through the same handler
// registry the forward path used, and classifies the transaction's final
// state from the accumulated per-step outcomes.
//
// A rollback_policy of manual on a step is honored by skipping it rather
// than invoking its handler's Reverse; a policy of ansible is dispatched
// exactly like auto, to the Reverse of the handler for the step's own kind
// (for an ansible_playbook step, that runs its rollback_playbook), since
// the distinction only matters for how an operator is expected to recover
// a skipped step, not for what the engine does.
package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"pkginstall/internal/engine"
	"pkginstall/internal/handler"
	"pkginstall/internal/journal"
	"pkginstall/internal/logging"
	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// Engine reverses transactions. It implements engine.Roller.
type Engine struct {
	store  *journal.Store
	reg    *handler.Registry
	logger *slog.Logger
}

// New constructs a rollback Engine.
func New(store *journal.Store, reg *handler.Registry, logger *slog.Logger) *Engine {
	return &Engine{store: store, reg: reg, logger: logging.NewComponentLogger(logger, "rollback")}
}

// Rollback reverses txID's completed steps in strict descending order. A
// step kind missing from the registry, a handler error, or an
// Unrecoverable outcome still mark the step rolled_back in the journal, but
// push the transaction's final status to rollback_failed rather than
// rolled_back; rollback still proceeds through the remaining steps so a
// single unrecoverable step never masks others that could still be
// reversed.
func (e *Engine) Rollback(ctx context.Context, txID int64) (*engine.RollbackSummary, error) {
	steps, err := e.store.GetTransactionSteps(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load steps for transaction %d: %w", txID, err)
	}
	snaps, err := e.store.GetTransactionSnapshots(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots for transaction %d: %w", txID, err)
	}
	snapByOrder := make(map[int]*snapshot.Snapshot, len(snaps))
	for _, s := range snaps {
		decoded, err := snapshot.Decode(s.SnapshotData)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot for step %d: %w", s.Order, err)
		}
		snapByOrder[s.Order] = decoded
	}

	logger := e.logger.With(logging.Int64(logging.FieldTransactionID, txID))
	summary := &engine.RollbackSummary{Status: journal.TransactionRolledBack}

	for i := len(steps) - 1; i >= 0; i-- {
		row := steps[i]
		// Only steps that actually ran forward have anything to reverse.
		// pending means the step was recorded but its forward op never
		// reported completion (a crash mid-step), so it is not reversed;
		// a prior run's rolled_back means it was already handled (recovery
		// re-entry).
		if row.Status != journal.StepCompleted {
			continue
		}

		step, err := decodeStep(row.StepData)
		if err != nil {
			summary.Status = journal.TransactionRollbackFailed
			summary.Results = append(summary.Results, engine.StepOutcome{Order: row.Order, Err: err})
			continue
		}

		stepLogger := logger.With(
			logging.Int(logging.FieldStepOrder, row.Order),
			logging.String(logging.FieldStepType, string(step.Kind)),
		)

		if step.RollbackOrDefault() == manifest.RollbackManual {
			stepLogger.Info("skipping rollback for manual-policy step",
				logging.String(logging.FieldEventType, "rollback_step_skipped_manual"))
			summary.Results = append(summary.Results, engine.StepOutcome{
				Order: row.Order, Kind: step.Kind, Outcome: handler.NoOp, Detail: "rollback policy is manual; skipped",
			})
			_ = e.store.UpdateStepStatus(ctx, txID, row.Order, journal.StepRolledBack)
			continue
		}

		outcome := e.reverseStep(ctx, txID, row.Order, step, snapByOrder[row.Order], stepLogger)
		summary.Results = append(summary.Results, outcome)
		if outcome.Outcome == handler.Unrecoverable || outcome.Err != nil {
			summary.Status = journal.TransactionRollbackFailed
		}
	}

	return summary, nil
}

func (e *Engine) reverseStep(ctx context.Context, txID int64, order int, step manifest.Step, snap *snapshot.Snapshot, logger *slog.Logger) engine.StepOutcome {
	capability, err := e.reg.Lookup(step.Kind)
	if err != nil {
		logging.ErrorWithContext(logger, "no handler registered for step kind", "rollback_step_failed",
			logging.Error(err), logging.String(logging.FieldErrorHint, "this step cannot be reversed automatically"))
		_ = e.store.UpdateStepStatus(ctx, txID, order, journal.StepRolledBack)
		return engine.StepOutcome{Order: order, Kind: step.Kind, Outcome: handler.Unrecoverable, Detail: err.Error(), Err: err}
	}

	result, err := capability.Reverse(ctx, step, snap)
	// A rollback handler call always transitions the step's journal row to
	// rolled_back: the step's forward effect has been attempted to be
	// undone either way, and rolled_back is the only terminal status a
	// completed step can reach.
	_ = e.store.UpdateStepStatus(ctx, txID, order, journal.StepRolledBack)

	if err != nil {
		logging.ErrorWithContext(logger, "rollback handler returned an error", "rollback_step_failed",
			logging.Error(&engine.RollbackStepFailure{StepOrder: order, StepKind: step.Kind, Err: err}),
			logging.String(logging.FieldErrorHint, "inspect the host and repair this step's effect manually"))
		return engine.StepOutcome{Order: order, Kind: step.Kind, Outcome: handler.Unrecoverable, Detail: result.Detail, Err: err}
	}

	switch result.Outcome {
	case handler.Unrecoverable:
		logging.WarnWithContext(logger, "rollback step could not be fully reversed", "rollback_step_unrecoverable",
			logging.String(logging.FieldErrorHint, "inspect the host and repair this step's effect manually"))
	default:
		logger.Info("rollback step reversed", logging.String(logging.FieldEventType, "rollback_step"), logging.String("outcome", string(result.Outcome)))
	}

	return engine.StepOutcome{Order: order, Kind: step.Kind, Outcome: result.Outcome, Detail: result.Detail}
}

func decodeStep(data string) (manifest.Step, error) {
	var step manifest.Step
	if err := json.Unmarshal([]byte(data), &step); err != nil {
		return manifest.Step{}, fmt.Errorf("decode step: %w", err)
	}
	return step, nil
}
