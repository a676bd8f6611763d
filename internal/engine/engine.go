// Package engine implements the transaction engine: the component that
// turns a validated manifest into a sequence of journaled, snapshotted,
// handler-dispatched steps, and that owns the single mutable state machine
// a transaction moves through (pending -> completed|failed|rolled_back|
// rollback_failed).
//
// An Engine value is long-lived and holds only the shared dependencies
// (journal store, snapshotter, handler registry, roller). A Transaction
// value is short-lived: it is constructed by BeginTransaction, holds the
// advisory host lock for its entire life, and is destroyed by Commit or
// Rollback. Nothing outside this package is expected to retain a
// Transaction past one of those calls.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pkginstall/internal/config"
	"pkginstall/internal/handler"
	"pkginstall/internal/journal"
	"pkginstall/internal/lock"
	"pkginstall/internal/logging"
	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// Roller performs the rollback of a transaction's completed steps in
// strict descending order. internal/rollback implements this against the
// same journal store, snapshotter decode path, and handler registry the
// engine itself uses; the engine depends only on this narrow interface so
// the two packages don't import one another.
type Roller interface {
	Rollback(ctx context.Context, txID int64) (*RollbackSummary, error)
}

// StepOutcome records what happened when one step was reversed.
type StepOutcome struct {
	Order   int
	Kind    manifest.StepKind
	Outcome handler.Outcome
	Detail  string
	Err     error
}

// RollbackSummary is the result of reversing a transaction's steps.
type RollbackSummary struct {
	Status  journal.TransactionStatus // rolled_back or rollback_failed
	Results []StepOutcome
}

// Engine holds the dependencies shared by every transaction. Construct one
// per process.
type Engine struct {
	cfg    *config.Config
	store  *journal.Store
	snap   *snapshot.Snapshotter
	reg    *handler.Registry
	roller Roller
	logger *slog.Logger
}

// New constructs an Engine from its dependencies.
func New(cfg *config.Config, store *journal.Store, snapper *snapshot.Snapshotter, reg *handler.Registry, roller Roller, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		snap:   snapper,
		reg:    reg,
		roller: roller,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

// plannedStep is one entry in a transaction's dense, ordered step sequence,
// built by concatenating pre_install, install_steps, and post_install.
type plannedStep struct {
	order int
	step  manifest.Step
}

// Transaction is the short-lived handle returned by BeginTransaction. It
// owns the advisory lock until Commit or Rollback releases it.
type Transaction struct {
	engine *Engine
	lock   *lock.Lock
	id     int64
	plan   []plannedStep
	logger *slog.Logger
}

// ID returns the journal transaction id.
func (t *Transaction) ID() int64 { return t.id }

// BeginTransaction validates the manifest, acquires the host-wide advisory
// lock, and journals a new pending transaction. The densely-ordered step
// plan is built in memory here but journaled one row at a time by
// ExecuteSteps, immediately before each step's forward op runs, so a step
// the process never reaches is never recorded. A failure to acquire the
// lock returns EngineBusy without touching the journal.
func (e *Engine) BeginTransaction(ctx context.Context, m *manifest.Manifest) (*Transaction, error) {
	if err := manifest.Validate(m); err != nil {
		return nil, &ValidationFailure{Err: err}
	}
	for _, ps := range buildPlan(m) {
		if _, err := e.reg.Lookup(ps.step.Kind); err != nil {
			return nil, &ValidationFailure{Err: err}
		}
	}

	l, err := lock.TryAcquire(e.cfg.LockPath())
	if err != nil {
		return nil, &EngineBusy{Err: err}
	}

	canonical, err := manifest.Canonicalize(m)
	if err != nil {
		_ = l.Release()
		return nil, &ValidationFailure{Err: err}
	}
	hash, err := manifest.Hash(m)
	if err != nil {
		_ = l.Release()
		return nil, &ValidationFailure{Err: err}
	}

	txID, err := e.store.CreateTransaction(ctx, m.Package.Name, hash, string(canonical))
	if err != nil {
		_ = l.Release()
		return nil, &JournalError{Op: "begin", Err: err}
	}

	plan := buildPlan(m)

	logger := logging.NewComponentLogger(e.logger, "engine").With(logging.Int64(logging.FieldTransactionID, txID))
	logger.Info("transaction begun",
		logging.String(logging.FieldEventType, "tx_begin"),
		logging.String(logging.FieldPackageName, m.Package.Name),
		logging.Int("step_count", len(plan)),
	)

	return &Transaction{engine: e, lock: l, id: txID, plan: plan, logger: logger}, nil
}

// buildPlan concatenates pre_install, install_steps, and post_install into
// one dense 1-based ordering, matching the journal's step_order contract.
func buildPlan(m *manifest.Manifest) []plannedStep {
	var all []manifest.Step
	all = append(all, m.PreInstall...)
	all = append(all, m.InstallSteps...)
	all = append(all, m.PostInstall...)

	plan := make([]plannedStep, len(all))
	for i, step := range all {
		plan[i] = plannedStep{order: i + 1, step: step}
	}
	return plan
}

// Commit marks the transaction completed and releases the lock. It is only
// valid to call after every step in the plan reported StepCompleted.
func (t *Transaction) Commit(ctx context.Context) error {
	defer t.release()

	if err := t.engine.store.UpdateTransactionStatus(ctx, t.id, journal.TransactionCompleted); err != nil {
		return &JournalError{Op: "commit", Err: err}
	}
	t.logger.Info("transaction committed", logging.String(logging.FieldEventType, "tx_commit"))
	return nil
}

// Rollback reverses the transaction's completed steps via the engine's
// Roller and transitions the transaction to its terminal rollback status.
func (t *Transaction) Rollback(ctx context.Context) (*RollbackSummary, error) {
	defer t.release()
	return t.engine.runRollback(ctx, t.id, t.logger)
}

// runRollback invokes the roller and persists the resulting terminal
// status. It is shared by Transaction.Rollback and the execute_steps
// failure path (spec.md §9: the engine performs rollback exactly once,
// inline, when a step fails mid-execution).
func (e *Engine) runRollback(ctx context.Context, txID int64, logger *slog.Logger) (*RollbackSummary, error) {
	summary, err := e.roller.Rollback(ctx, txID)
	if err != nil {
		return nil, &JournalError{Op: "rollback", Err: err}
	}

	if err := e.store.UpdateTransactionStatus(ctx, txID, summary.Status); err != nil {
		return summary, &JournalError{Op: "rollback", Err: err}
	}

	if logger != nil {
		if summary.Status == journal.TransactionRollbackFailed {
			logging.WarnWithContext(logger, "rollback completed with unrecoverable steps", "rollback_complete",
				logging.String(logging.FieldErrorHint, "inspect unrecoverable steps and repair the host manually"))
		} else {
			logger.Info("rollback completed", logging.String(logging.FieldEventType, "rollback_complete"))
		}
	}
	return summary, nil
}

// RollbackByID reverses a specific transaction's completed steps without an
// in-hand Transaction handle. It acquires the advisory lock itself, which is
// how an operator recovers a transaction left pending by a previous CLI
// invocation. A transaction in any other status (completed included) is
// refused before any step is reversed.
func (e *Engine) RollbackByID(ctx context.Context, txID int64) (*RollbackSummary, error) {
	l, err := lock.TryAcquire(e.cfg.LockPath())
	if err != nil {
		return nil, &EngineBusy{Err: err}
	}
	defer l.Release()

	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, &JournalError{Op: "rollback", Err: err}
	}
	if tx.Status != journal.TransactionPending {
		return nil, fmt.Errorf("transaction %d is %s; only a pending transaction can be rolled back", txID, tx.Status)
	}

	logger := logging.NewComponentLogger(e.logger, "engine").With(logging.Int64(logging.FieldTransactionID, txID))
	return e.runRollback(ctx, txID, logger)
}

func (t *Transaction) release() {
	if t.lock != nil {
		_ = t.lock.Release()
	}
}

// stepDeadline returns a context bounded by the engine's configured step
// timeout, or ctx unchanged if no timeout is configured.
func stepDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
