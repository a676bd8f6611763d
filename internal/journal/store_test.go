package journal

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetTransaction(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTransaction(ctx, "nginx-bundle", "deadbeef", `{"package":{}}`)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	tx, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Status != TransactionPending {
		t.Fatalf("expected pending status, got %s", tx.Status)
	}
	if tx.PackageName != "nginx-bundle" {
		t.Fatalf("expected package name nginx-bundle, got %s", tx.PackageName)
	}
}

func TestStepLifecycleTransitions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	txID, err := store.CreateTransaction(ctx, "pkg", "hash", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := store.RecordStep(ctx, txID, 1, "apt_package", "{}", StepPending); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}
	if err := store.UpdateStepStatus(ctx, txID, 1, StepCompleted); err != nil {
		t.Fatalf("UpdateStepStatus pending->completed: %v", err)
	}
	if err := store.UpdateStepStatus(ctx, txID, 1, StepRolledBack); err != nil {
		t.Fatalf("UpdateStepStatus completed->rolled_back: %v", err)
	}

	// rolled_back -> failed is not a permitted transition.
	if err := store.UpdateStepStatus(ctx, txID, 1, StepFailed); err == nil {
		t.Fatal("expected InvalidStateTransition for rolled_back->failed")
	}
}

func TestUpdateTransactionStatusOnlyFromPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	txID, err := store.CreateTransaction(ctx, "pkg", "hash", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := store.UpdateTransactionStatus(ctx, txID, TransactionCompleted); err != nil {
		t.Fatalf("pending->completed: %v", err)
	}
	if err := store.UpdateTransactionStatus(ctx, txID, TransactionRolledBack); err == nil {
		t.Fatal("expected InvalidStateTransition for completed->rolled_back")
	}
}

func TestSaveSnapshotAndFetchOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	txID, err := store.CreateTransaction(ctx, "pkg", "hash", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := store.RecordStep(ctx, txID, i, "file_copy", "{}", StepPending); err != nil {
			t.Fatalf("RecordStep %d: %v", i, err)
		}
		if err := store.SaveSnapshot(ctx, txID, i, `{"kind":"file","payload":{}}`); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}

	snaps, err := store.GetTransactionSnapshots(ctx, txID)
	if err != nil {
		t.Fatalf("GetTransactionSnapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Order != i+1 {
			t.Fatalf("expected ascending order, got snapshot[%d].Order = %d", i, snap.Order)
		}
	}
}

func TestListTransactionsDescendingByCreatedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateTransaction(ctx, "pkg", "hash", "{}"); err != nil {
			t.Fatalf("CreateTransaction %d: %v", i, err)
		}
	}

	list, err := store.ListTransactions(ctx, 2)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected limit to cap at 2 rows, got %d", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Fatalf("expected descending created_at, got %s before %s", list[0].CreatedAt, list[1].CreatedAt)
	}
}

func TestCleanupOldTransactionsPurgesOnlyTerminalAndOld(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	oldID, err := store.CreateTransaction(ctx, "old-pkg", "hash1", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction old: %v", err)
	}
	if err := store.UpdateTransactionStatus(ctx, oldID, TransactionCompleted); err != nil {
		t.Fatalf("complete old: %v", err)
	}
	backdate := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339Nano)
	if _, err := store.db.ExecContext(ctx, `UPDATE transactions SET created_at = ? WHERE id = ?`, backdate, oldID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	recentID, err := store.CreateTransaction(ctx, "recent-pkg", "hash2", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction recent: %v", err)
	}
	if err := store.UpdateTransactionStatus(ctx, recentID, TransactionCompleted); err != nil {
		t.Fatalf("complete recent: %v", err)
	}

	pendingID, err := store.CreateTransaction(ctx, "pending-pkg", "hash3", "{}")
	if err != nil {
		t.Fatalf("CreateTransaction pending: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `UPDATE transactions SET created_at = ? WHERE id = ?`, backdate, pendingID); err != nil {
		t.Fatalf("backdate pending: %v", err)
	}

	affected, err := store.CleanupOldTransactions(ctx, 30)
	if err != nil {
		t.Fatalf("CleanupOldTransactions: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected exactly 1 transaction purged, got %d", affected)
	}

	if _, err := store.GetTransaction(ctx, oldID); err == nil {
		t.Fatal("expected old transaction to be purged")
	}
	if _, err := store.GetTransaction(ctx, recentID); err != nil {
		t.Fatalf("recent transaction should survive cleanup: %v", err)
	}
	if _, err := store.GetTransaction(ctx, pendingID); err != nil {
		t.Fatalf("pending transaction should survive cleanup regardless of age: %v", err)
	}
}
