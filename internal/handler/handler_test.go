package handler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

func TestRegistryLookup(t *testing.T) {
	reg := Default("/etc/pkginstall/playbooks")
	for _, kind := range []manifest.StepKind{
		manifest.StepAptPackage,
		manifest.StepFileCopy,
		manifest.StepSystemdService,
		manifest.StepUserManagement,
		manifest.StepAnsiblePlaybook,
	} {
		if _, err := reg.Lookup(kind); err != nil {
			t.Fatalf("expected handler registered for %s: %v", kind, err)
		}
	}
}

func TestRegistryLookupMissingKind(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Lookup(manifest.StepFileCopy); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestFileCopyForwardAndReverseRestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")

	if err := os.WriteFile(src, []byte("new contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("original contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	snapper := snapshot.New(filepath.Join(dir, "snapshots"))
	step := manifest.Step{
		Kind: manifest.StepFileCopy,
		FileCopy: &manifest.FileCopySpec{
			Src:  src,
			Dest: dest,
		},
	}

	snap := snapper.Capture(context.Background(), 1, 1, step)

	h := NewFileCopyHandler()
	result, err := h.Forward(context.Background(), step)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if result.Outcome != Reversed {
		t.Fatalf("expected forward outcome Reversed, got %s", result.Outcome)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new contents" {
		t.Fatalf("expected dest to contain new contents, got %q", got)
	}

	reverseResult, err := h.Reverse(context.Background(), step, snap)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if reverseResult.Outcome != Reversed {
		t.Fatalf("expected reverse outcome Reversed, got %s", reverseResult.Outcome)
	}

	restored, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "original contents" {
		t.Fatalf("expected dest restored to original contents, got %q", restored)
	}
}

func TestFileCopyForwardAppliesNumericOwnerAndGroup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	uid := strconv.Itoa(os.Getuid())
	gid := strconv.Itoa(os.Getgid())
	step := manifest.Step{
		Kind: manifest.StepFileCopy,
		FileCopy: &manifest.FileCopySpec{
			Src:   src,
			Dest:  dest,
			Owner: uid,
			Group: gid,
		},
	}

	h := NewFileCopyHandler()
	if _, err := h.Forward(context.Background(), step); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		t.Fatal("expected syscall.Stat_t")
	}
	if int(stat.Uid) != os.Getuid() || int(stat.Gid) != os.Getgid() {
		t.Fatalf("expected owner %d:%d, got %d:%d", os.Getuid(), os.Getgid(), stat.Uid, stat.Gid)
	}
}

func TestResolveOwnerGroup_UnknownNameFails(t *testing.T) {
	if _, _, err := resolveOwnerGroup("no-such-user-xyz", ""); err == nil {
		t.Fatal("expected error for unknown owner name")
	}
}

func TestFileCopyReverseRemovesWhenDestDidNotExistBefore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	snapper := snapshot.New(filepath.Join(dir, "snapshots"))
	step := manifest.Step{
		Kind:     manifest.StepFileCopy,
		FileCopy: &manifest.FileCopySpec{Src: src, Dest: dest},
	}
	snap := snapper.Capture(context.Background(), 1, 1, step)

	h := NewFileCopyHandler()
	if _, err := h.Forward(context.Background(), step); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected dest to exist after forward: %v", err)
	}

	if _, err := h.Reverse(context.Background(), step, snap); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected dest removed after reverse, stat err = %v", err)
	}
}
