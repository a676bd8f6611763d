package engine

import (
	"fmt"

	"pkginstall/internal/manifest"
)

// ValidationFailure is surfaced when a manifest fails schema validation.
// The engine aborts before any journal write.
type ValidationFailure struct {
	Err error
}

func (e *ValidationFailure) Error() string { return fmt.Sprintf("validation failed: %v", e.Err) }
func (e *ValidationFailure) Unwrap() error { return e.Err }

// JournalError is surfaced when the journal itself fails. If it occurs
// during step execution the transaction is left pending for manual
// recovery rather than being force-transitioned.
type JournalError struct {
	Op  string
	Err error
}

func (e *JournalError) Error() string { return fmt.Sprintf("journal error during %s: %v", e.Op, e.Err) }
func (e *JournalError) Unwrap() error { return e.Err }

// StepExecutionFailure is surfaced when a handler's forward op fails. The
// engine marks the step failed and triggers rollback.
type StepExecutionFailure struct {
	StepOrder int
	StepKind  manifest.StepKind
	Err       error
}

func (e *StepExecutionFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepOrder, e.StepKind, e.Err)
}
func (e *StepExecutionFailure) Unwrap() error { return e.Err }

// StepTimeout is surfaced when a step exceeds its per-step deadline. It is
// handled identically to StepExecutionFailure.
type StepTimeout struct {
	StepOrder int
	StepKind  manifest.StepKind
}

func (e *StepTimeout) Error() string {
	return fmt.Sprintf("step %d (%s) timed out", e.StepOrder, e.StepKind)
}

// SnapshotFailure is returned when a captured snapshot cannot be encoded for
// the journal; the step fails and the transaction is rolled back. A capture
// failure is not reported this way: the snapshotter records it as a minimal
// snapshot and the transaction continues.
type SnapshotFailure struct {
	StepOrder int
	Err       error
}

func (e *SnapshotFailure) Error() string {
	return fmt.Sprintf("snapshot capture failed for step %d: %v", e.StepOrder, e.Err)
}
func (e *SnapshotFailure) Unwrap() error { return e.Err }

// RollbackStepFailure is accumulated when a handler's reverse op itself
// errors (as opposed to returning an Unrecoverable outcome cleanly).
// Rollback continues; the transaction ends rollback_failed.
type RollbackStepFailure struct {
	StepOrder int
	StepKind  manifest.StepKind
	Err       error
}

func (e *RollbackStepFailure) Error() string {
	return fmt.Sprintf("rollback of step %d (%s) failed: %v", e.StepOrder, e.StepKind, e.Err)
}
func (e *RollbackStepFailure) Unwrap() error { return e.Err }

// EngineBusy is surfaced when the advisory lock could not be acquired. No
// state is touched.
type EngineBusy struct {
	Err error
}

func (e *EngineBusy) Error() string { return fmt.Sprintf("engine busy: %v", e.Err) }
func (e *EngineBusy) Unwrap() error { return e.Err }

// TransactionError wraps the original cause of an execute_steps failure
// together with the rollback outcome, per spec.md §9's resolution of the
// rollback-inside-execute_steps open question: the engine performs rollback
// exactly once inside the failure path.
type TransactionError struct {
	Cause           error
	RollbackOutcome *RollbackSummary
}

func (e *TransactionError) Error() string {
	if e.RollbackOutcome == nil {
		return fmt.Sprintf("transaction failed: %v", e.Cause)
	}
	return fmt.Sprintf("transaction failed: %v (rollback: %s)", e.Cause, e.RollbackOutcome.Status)
}
func (e *TransactionError) Unwrap() error { return e.Cause }

// NoActiveTransaction is raised when commit or a step operation is invoked
// with no current transaction.
type NoActiveTransaction struct{}

func (e *NoActiveTransaction) Error() string { return "no active transaction" }

// AlreadyActiveTransaction is raised when begin is invoked while a current
// transaction already exists.
type AlreadyActiveTransaction struct{}

func (e *AlreadyActiveTransaction) Error() string { return "a transaction is already active" }
