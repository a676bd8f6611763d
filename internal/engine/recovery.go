package engine

import (
	"context"

	"pkginstall/internal/journal"
	"pkginstall/internal/lock"
	"pkginstall/internal/logging"
)

// RecoverPending is run once at process startup, before any new transaction
// is accepted. A transaction left in pending status means the process
// crashed or was killed mid-execute_steps; per spec.md §4.5 such a
// transaction is not resumed, it is rolled back. RecoverPending acquires
// the advisory lock itself for the duration of the scan so it cannot race
// a concurrently starting install.
func (e *Engine) RecoverPending(ctx context.Context) ([]*RollbackSummary, error) {
	l, err := lock.TryAcquire(e.cfg.LockPath())
	if err != nil {
		return nil, &EngineBusy{Err: err}
	}
	defer l.Release()

	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return nil, &JournalError{Op: "recover_pending", Err: err}
	}

	var summaries []*RollbackSummary
	for _, tx := range txs {
		if tx.Status != journal.TransactionPending {
			continue
		}

		logger := logging.NewComponentLogger(e.logger, "engine").With(logging.Int64(logging.FieldTransactionID, tx.ID))
		logging.WarnWithContext(logger, "recovering pending transaction left by a previous process", "recovery_rollback",
			logging.String(logging.FieldErrorHint, "this transaction will be rolled back before any new install proceeds"),
		)

		summary, rbErr := e.runRollback(ctx, tx.ID, logger)
		if rbErr != nil {
			return summaries, rbErr
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
