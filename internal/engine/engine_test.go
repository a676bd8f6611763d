package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"pkginstall/internal/config"
	"pkginstall/internal/handler"
	"pkginstall/internal/journal"
	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// stubRoller reverses a transaction's completed steps in strict descending
// order using the same store/registry/snapshot plumbing the real
// internal/rollback package uses. It exists because internal/rollback
// imports this package, so these tests cannot use it without an import
// cycle.
type stubRoller struct {
	store *journal.Store
	reg   *handler.Registry
}

func (r *stubRoller) Rollback(ctx context.Context, txID int64) (*RollbackSummary, error) {
	steps, err := r.store.GetTransactionSteps(ctx, txID)
	if err != nil {
		return nil, err
	}
	snaps, err := r.store.GetTransactionSnapshots(ctx, txID)
	if err != nil {
		return nil, err
	}
	snapByOrder := map[int]*snapshot.Snapshot{}
	for _, s := range snaps {
		decoded, err := snapshot.Decode(s.SnapshotData)
		if err != nil {
			return nil, err
		}
		snapByOrder[s.Order] = decoded
	}

	summary := &RollbackSummary{Status: journal.TransactionRolledBack}
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if st.Status != journal.StepCompleted {
			continue
		}
		capability, err := r.reg.Lookup(manifest.StepKind(st.StepType))
		if err != nil {
			summary.Status = journal.TransactionRollbackFailed
			summary.Results = append(summary.Results, StepOutcome{Order: st.Order, Err: err})
			continue
		}
		step := decodeStep(st.StepData)
		result, err := capability.Reverse(ctx, step, snapByOrder[st.Order])
		if err != nil || result.Outcome == handler.Unrecoverable {
			summary.Status = journal.TransactionRollbackFailed
		}
		summary.Results = append(summary.Results, StepOutcome{Order: st.Order, Kind: step.Kind, Outcome: result.Outcome, Detail: result.Detail, Err: err})
		_ = r.store.UpdateStepStatus(ctx, txID, st.Order, journal.StepRolledBack)
	}
	return summary, nil
}

func decodeStep(data string) manifest.Step {
	var step manifest.Step
	_ = json.Unmarshal([]byte(data), &step)
	return step
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) (*Engine, *journal.Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = dir
	cfg.SnapshotDir = filepath.Join(dir, "snapshots")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	store, err := journal.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := handler.NewRegistry(handler.NewFileCopyHandler())
	snapper := snapshot.New(cfg.SnapshotDir)
	roller := &stubRoller{store: store, reg: reg}

	return New(cfg, store, snapper, reg, roller, testLogger()), store, dir
}

func fileCopyManifest(src, dest string) *manifest.Manifest {
	return &manifest.Manifest{
		Package: manifest.Package{Name: "demo", Version: "1.0.0"},
		InstallSteps: []manifest.Step{
			{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: src, Dest: dest}},
		},
	}
}

func TestBeginExecuteCommitHappyPath(t *testing.T) {
	e, store, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tx, err := e.BeginTransaction(ctx, fileCopyManifest(src, dest))
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := tx.ExecuteSteps(ctx); err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.GetTransaction(ctx, tx.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != journal.TransactionCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "payload" {
		t.Fatalf("expected dest to contain payload, got %q", content)
	}
}

func TestExecuteStepsFailureTriggersInlineRollback(t *testing.T) {
	e, store, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	missingSrc := filepath.Join(dir, "does-not-exist.txt")
	m := &manifest.Manifest{
		Package: manifest.Package{Name: "demo", Version: "1.0.0"},
		InstallSteps: []manifest.Step{
			{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: src, Dest: dest}},
			{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: missingSrc, Dest: filepath.Join(dir, "other.txt")}},
		},
	}

	ctx := context.Background()
	tx, err := e.BeginTransaction(ctx, m)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	err = tx.ExecuteSteps(ctx)
	if err == nil {
		t.Fatal("expected ExecuteSteps to fail on the second step")
	}
	txErr, ok := err.(*TransactionError)
	if !ok {
		t.Fatalf("expected *TransactionError, got %T: %v", err, err)
	}
	if txErr.RollbackOutcome == nil {
		t.Fatal("expected a rollback outcome")
	}

	got, err := store.GetTransaction(ctx, tx.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != journal.TransactionRolledBack && got.Status != journal.TransactionRollbackFailed {
		t.Fatalf("expected a rollback terminal status, got %s", got.Status)
	}

	restored, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "original" {
		t.Fatalf("expected dest restored to original content, got %q", restored)
	}
}

func TestBeginTransactionDoesNotJournalStepsUpFront(t *testing.T) {
	e, store, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tx, err := e.BeginTransaction(ctx, fileCopyManifest(src, dest))
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	defer tx.release()

	steps, err := store.GetTransactionSteps(ctx, tx.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected no journaled steps before ExecuteSteps runs, got %d", len(steps))
	}
}

func TestExecuteStepsNeverJournalsAStepItNeverReaches(t *testing.T) {
	e, store, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	missingSrc := filepath.Join(dir, "does-not-exist.txt")
	m := &manifest.Manifest{
		Package: manifest.Package{Name: "demo", Version: "1.0.0"},
		InstallSteps: []manifest.Step{
			{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: missingSrc, Dest: filepath.Join(dir, "other.txt")}},
			{Kind: manifest.StepFileCopy, FileCopy: &manifest.FileCopySpec{Src: src, Dest: dest}},
		},
	}

	ctx := context.Background()
	tx, err := e.BeginTransaction(ctx, m)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	if err := tx.ExecuteSteps(ctx); err == nil {
		t.Fatal("expected ExecuteSteps to fail on the first step")
	}

	steps, err := store.GetTransactionSteps(ctx, tx.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected only the attempted step to be journaled, got %d", len(steps))
	}
}

func TestBeginTransactionBusyWhileLockHeld(t *testing.T) {
	e, _, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tx, err := e.BeginTransaction(ctx, fileCopyManifest(src, dest))
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	defer tx.release()

	_, err = e.BeginTransaction(ctx, fileCopyManifest(src, dest))
	if err == nil {
		t.Fatal("expected second BeginTransaction to be rejected while the lock is held")
	}
	if _, ok := err.(*EngineBusy); !ok {
		t.Fatalf("expected *EngineBusy, got %T: %v", err, err)
	}
}

func TestRecoverPendingRollsBackOrphanedTransaction(t *testing.T) {
	e, store, dir := newTestEngine(t)
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m := fileCopyManifest(src, dest)
	tx, err := e.BeginTransaction(ctx, m)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.ExecuteSteps(ctx); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash: the process dies before Commit, leaving the
	// transaction pending with its lock released (as os.Exit would).
	tx.release()

	summaries, err := e.RecoverPending(ctx)
	if err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one recovered transaction, got %d", len(summaries))
	}

	got, err := store.GetTransaction(ctx, tx.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Status.IsTerminal() {
		t.Fatalf("expected recovered transaction to reach a terminal status, got %s", got.Status)
	}

	restored, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "original" {
		t.Fatalf("expected dest restored to original content, got %q", restored)
	}
}
