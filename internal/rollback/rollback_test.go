package rollback

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"pkginstall/internal/handler"
	"pkginstall/internal/journal"
	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

func newStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func recordStep(t *testing.T, store *journal.Store, txID int64, order int, step manifest.Step, status journal.StepStatus) {
	t.Helper()
	data, err := json.Marshal(step)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordStep(context.Background(), txID, order, string(step.Kind), string(data), status); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackReversesInStrictDescendingOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	firstDest := filepath.Join(dir, "first.txt")
	secondDest := filepath.Join(dir, "second.txt")
	if err := os.WriteFile(firstDest, []byte("first-original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secondDest, []byte("second-original"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("new-content"), 0o644); err != nil {
		t.Fatal(err)
	}

	txID, err := store.CreateTransaction(ctx, "demo", "hash", "{}")
	if err != nil {
		t.Fatal(err)
	}

	step1 := manifest.Step{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: src, Dest: firstDest}}
	step2 := manifest.Step{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: src, Dest: secondDest}}
	recordStep(t, store, txID, 1, step1, journal.StepCompleted)
	recordStep(t, store, txID, 2, step2, journal.StepCompleted)

	snap1, err := snapshot.Encode(snapshot.NewFileSnap(snapshot.FileSnap{Exists: true, BackupPath: snapshotBackup(t, dir, "first.txt.bak", "first-original")}))
	if err != nil {
		t.Fatal(err)
	}
	snap2, err := snapshot.Encode(snapshot.NewFileSnap(snapshot.FileSnap{Exists: true, BackupPath: snapshotBackup(t, dir, "second.txt.bak", "second-original")}))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(ctx, txID, 1, snap1); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(ctx, txID, 2, snap2); err != nil {
		t.Fatal(err)
	}

	// Actually apply the forward copies so reverse has something to undo.
	if err := os.WriteFile(firstDest, []byte("new-content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secondDest, []byte("new-content"), 0o644); err != nil {
		t.Fatal(err)
	}

	var order []int
	reg := handler.NewRegistry(orderTrackingFileCopy(&order))
	eng := New(store, reg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	summary, err := eng.Rollback(ctx, txID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if summary.Status != journal.TransactionRolledBack {
		t.Fatalf("expected rolled_back, got %s", summary.Status)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reversal order [2, 1], got %v", order)
	}

	firstRestored, err := os.ReadFile(firstDest)
	if err != nil {
		t.Fatal(err)
	}
	if string(firstRestored) != "first-original" {
		t.Fatalf("expected first.txt restored, got %q", firstRestored)
	}
}

func TestRollbackSkipsManualPolicySteps(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	txID, err := store.CreateTransaction(ctx, "demo", "hash", "{}")
	if err != nil {
		t.Fatal(err)
	}
	step := manifest.Step{
		Kind:     manifest.StepAnsiblePlaybook,
		Rollback: manifest.RollbackManual,
		AnsiblePlaybook: &manifest.AnsiblePlaybookSpec{
			Playbook: "site.yml",
		},
	}
	recordStep(t, store, txID, 1, step, journal.StepCompleted)
	snap, err := snapshot.Encode(snapshot.NewAnsibleSnap(snapshot.AnsibleSnap{Playbook: "site.yml"}))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(ctx, txID, 1, snap); err != nil {
		t.Fatal(err)
	}

	reg := handler.NewRegistry(handler.NewAnsiblePlaybookHandler(""))
	eng := New(store, reg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	summary, err := eng.Rollback(ctx, txID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if summary.Status != journal.TransactionRolledBack {
		t.Fatalf("expected rolled_back (manual skip is not a failure), got %s", summary.Status)
	}
	if len(summary.Results) != 1 || summary.Results[0].Outcome != handler.NoOp {
		t.Fatalf("expected a single no_op result for the manual step, got %+v", summary.Results)
	}
}

func TestRollbackMarksTransactionFailedOnUnrecoverableStep(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	txID, err := store.CreateTransaction(ctx, "demo", "hash", "{}")
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "dest.txt")
	step := manifest.Step{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: "/nonexistent/src", Dest: dest}}
	recordStep(t, store, txID, 1, step, journal.StepCompleted)

	// No snapshot saved for this step: FileCopyHandler.Reverse treats a
	// missing snapshot as unrecoverable.
	reg := handler.NewRegistry(handler.NewFileCopyHandler())
	eng := New(store, reg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	summary, err := eng.Rollback(ctx, txID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if summary.Status != journal.TransactionRollbackFailed {
		t.Fatalf("expected rollback_failed, got %s", summary.Status)
	}
}

func snapshotBackup(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// trackingFileCopy wraps the real file_copy handler to record the order in
// which Reverse is invoked, proving the engine walks steps in strict
// descending order rather than ascending or unordered.
type trackingFileCopy struct {
	inner *handler.FileCopyHandler
	order *[]int
}

func orderTrackingFileCopy(order *[]int) handler.Capability {
	return &trackingFileCopy{inner: handler.NewFileCopyHandler(), order: order}
}

func (w *trackingFileCopy) Kind() manifest.StepKind { return w.inner.Kind() }

func (w *trackingFileCopy) Forward(ctx context.Context, step manifest.Step) (handler.Result, error) {
	return w.inner.Forward(ctx, step)
}

func (w *trackingFileCopy) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (handler.Result, error) {
	if step.FileCopy != nil {
		*w.order = append(*w.order, destOrderHint(step.FileCopy.Dest))
	}
	return w.inner.Reverse(ctx, step, snap)
}

// destOrderHint maps a test fixture's dest filename back to its step order
// (1 for first.txt, 2 for second.txt) so the test can assert call order
// without threading step numbers through the handler interface.
func destOrderHint(dest string) int {
	if filepath.Base(dest) == "second.txt" {
		return 2
	}
	return 1
}
