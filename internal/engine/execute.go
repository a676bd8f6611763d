package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"pkginstall/internal/journal"
	"pkginstall/internal/logging"
	"pkginstall/internal/snapshot"
)

// ExecuteSteps runs the transaction's plan in order: capture a pre-image,
// dispatch the step's forward operation through the handler registry, and
// record the outcome in the journal. The first step failure (including a
// per-step timeout) triggers an inline rollback of everything completed so
// far and returns a *TransactionError wrapping both the original cause and
// the rollback outcome; the caller never calls Rollback itself in that
// case, since it already happened. A journal write failure is the
// exception: no inline rollback runs, the transaction is left pending, and
// the returned *TransactionError carries no rollback outcome.
func (t *Transaction) ExecuteSteps(ctx context.Context) error {
	for _, ps := range t.plan {
		stepCtx := logging.WithStepOrder(logging.WithTransactionID(ctx, t.id), ps.order)
		logger := t.logger.With(logging.Int(logging.FieldStepOrder, ps.order), logging.String(logging.FieldStepType, string(ps.step.Kind)))

		logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))

		data, err := json.Marshal(ps.step)
		if err != nil {
			return t.fail(ctx, ps, logger, &JournalError{Op: "record_step", Err: fmt.Errorf("encode step %d: %w", ps.order, err)})
		}
		if err := t.engine.store.RecordStep(stepCtx, t.id, ps.order, string(ps.step.Kind), string(data), journal.StepPending); err != nil {
			return t.fail(ctx, ps, logger, &JournalError{Op: "record_step", Err: err})
		}

		snap := t.engine.snap.Capture(stepCtx, t.id, ps.order, ps.step)
		if snap.Kind == snapshot.KindMinimal {
			logging.WarnWithContext(logger, "snapshot capture degraded to minimal", "snapshot_capture_failed",
				logging.String(logging.FieldErrorHint, "rollback for this step may be unrecoverable if it completes"),
			)
		}
		encoded, err := snapshot.Encode(snap)
		if err != nil {
			return t.fail(ctx, ps, logger, &SnapshotFailure{StepOrder: ps.order, Err: err})
		}
		if err := t.engine.store.SaveSnapshot(stepCtx, t.id, ps.order, encoded); err != nil {
			return t.fail(ctx, ps, logger, &JournalError{Op: "save_snapshot", Err: err})
		}

		capability, err := t.engine.reg.Lookup(ps.step.Kind)
		if err != nil {
			return t.fail(ctx, ps, logger, &StepExecutionFailure{StepOrder: ps.order, StepKind: ps.step.Kind, Err: err})
		}

		deadline, cancel := stepDeadline(stepCtx, t.engine.cfg.StepTimeout)
		result, err := capability.Forward(deadline, ps.step)
		cancel()

		if err != nil {
			if errors.Is(deadline.Err(), context.DeadlineExceeded) {
				return t.fail(ctx, ps, logger, &StepTimeout{StepOrder: ps.order, StepKind: ps.step.Kind})
			}
			return t.fail(ctx, ps, logger, &StepExecutionFailure{StepOrder: ps.order, StepKind: ps.step.Kind, Err: err})
		}

		if err := t.engine.store.UpdateStepStatus(stepCtx, t.id, ps.order, journal.StepCompleted); err != nil {
			return t.fail(ctx, ps, logger, &JournalError{Op: "update_step_status", Err: err})
		}

		logger.Info("step completed", logging.String(logging.FieldEventType, "step_complete"), logging.String("detail", result.Detail))
	}

	return nil
}

// fail releases the lock and returns a TransactionError. When the cause is
// a JournalError it leaves the transaction pending and runs no rollback.
// Otherwise it marks the failing step failed in the journal (best-effort; a
// journal write failure here does not mask the original cause), runs a
// rollback of the transaction's completed steps (the transaction then
// reaches a terminal state), and attaches the rollback outcome.
func (t *Transaction) fail(ctx context.Context, ps plannedStep, logger *slog.Logger, cause error) error {
	defer t.release()

	var jErr *JournalError
	if errors.As(cause, &jErr) {
		logging.ErrorWithContext(t.logger, "journal write failed, leaving transaction pending", "journal_error",
			logging.Error(cause),
			logging.Int(logging.FieldStepOrder, ps.order),
		)
		return &TransactionError{Cause: cause}
	}

	_ = t.engine.store.UpdateStepStatus(ctx, t.id, ps.order, journal.StepFailed)

	logging.ErrorWithContext(t.logger, "step failed, rolling back transaction", "step_failed",
		logging.Error(cause),
		logging.Int(logging.FieldStepOrder, ps.order),
	)

	summary, rbErr := t.engine.runRollback(ctx, t.id, t.logger)
	if rbErr != nil {
		return &TransactionError{Cause: cause, RollbackOutcome: nil}
	}
	return &TransactionError{Cause: cause, RollbackOutcome: summary}
}
