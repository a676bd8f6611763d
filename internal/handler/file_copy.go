package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// FileCopyHandler places a file on disk in-process rather than shelling out.
type FileCopyHandler struct{}

// NewFileCopyHandler returns the file_copy step handler.
func NewFileCopyHandler() *FileCopyHandler { return &FileCopyHandler{} }

func (h *FileCopyHandler) Kind() manifest.StepKind { return manifest.StepFileCopy }

func (h *FileCopyHandler) Forward(ctx context.Context, step manifest.Step) (Result, error) {
	spec := step.FileCopy
	if spec == nil {
		return Result{}, fmt.Errorf("file_copy step missing payload")
	}

	if err := copyFileVerified(spec.Src, spec.Dest); err != nil {
		return Result{}, fmt.Errorf("copy %s -> %s: %w", spec.Src, spec.Dest, err)
	}

	if spec.Mode != "" {
		mode, err := strconv.ParseUint(spec.Mode, 8, 32)
		if err != nil {
			return Result{}, fmt.Errorf("parse mode %q: %w", spec.Mode, err)
		}
		if err := os.Chmod(spec.Dest, os.FileMode(mode)); err != nil {
			return Result{}, fmt.Errorf("chmod %s: %w", spec.Dest, err)
		}
	}

	if spec.Owner != "" || spec.Group != "" {
		uid, gid, err := resolveOwnerGroup(spec.Owner, spec.Group)
		if err != nil {
			return Result{}, fmt.Errorf("resolve owner/group for %s: %w", spec.Dest, err)
		}
		if err := os.Chown(spec.Dest, uid, gid); err != nil {
			return Result{}, fmt.Errorf("chown %s: %w", spec.Dest, err)
		}
	}

	return Result{Outcome: Reversed, Detail: fmt.Sprintf("copied %s to %s", spec.Src, spec.Dest)}, nil
}

// resolveOwnerGroup resolves owner/group manifest fields, which may name a
// user/group or carry a numeric uid/gid, to concrete ids. An empty field
// resolves to -1, which os.Chown leaves unchanged.
func resolveOwnerGroup(owner, group string) (uid, gid int, err error) {
	uid, gid = -1, -1

	if owner != "" {
		if n, convErr := strconv.Atoi(owner); convErr == nil {
			uid = n
		} else {
			u, lookupErr := user.Lookup(owner)
			if lookupErr != nil {
				return -1, -1, fmt.Errorf("look up owner %q: %w", owner, lookupErr)
			}
			uid, err = strconv.Atoi(u.Uid)
			if err != nil {
				return -1, -1, fmt.Errorf("parse uid for %q: %w", owner, err)
			}
		}
	}

	if group != "" {
		if n, convErr := strconv.Atoi(group); convErr == nil {
			gid = n
		} else {
			g, lookupErr := user.LookupGroup(group)
			if lookupErr != nil {
				return -1, -1, fmt.Errorf("look up group %q: %w", group, lookupErr)
			}
			gid, err = strconv.Atoi(g.Gid)
			if err != nil {
				return -1, -1, fmt.Errorf("parse gid for %q: %w", group, err)
			}
		}
	}

	return uid, gid, nil
}

// Reverse implements spec.md §4.6's restore_original policy: if the
// snapshot carries a backup, dest is rewritten from it; otherwise dest is
// removed, since it did not exist before the transaction.
func (h *FileCopyHandler) Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error) {
	spec := step.FileCopy
	if spec == nil {
		return Result{}, fmt.Errorf("file_copy step missing payload")
	}
	if snap == nil || snap.File == nil {
		return Result{Outcome: Unrecoverable, Detail: "no file snapshot available"}, nil
	}

	if !snap.File.Exists {
		if err := os.Remove(spec.Dest); err != nil && !os.IsNotExist(err) {
			return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
		}
		return Result{Outcome: Reversed, Detail: fmt.Sprintf("removed %s (did not exist before transaction)", spec.Dest)}, nil
	}

	if snap.File.BackupPath == "" {
		return Result{Outcome: Unrecoverable, Detail: "snapshot recorded an existing file but no backup was captured"}, nil
	}
	if err := copyFileVerified(snap.File.BackupPath, spec.Dest); err != nil {
		return Result{Outcome: Unrecoverable, Detail: err.Error()}, nil
	}
	if snap.File.Mode != 0 {
		_ = os.Chmod(spec.Dest, os.FileMode(snap.File.Mode))
	}
	_ = os.Chown(spec.Dest, snap.File.OwnerUID, snap.File.GroupGID)
	return Result{Outcome: Reversed, Detail: fmt.Sprintf("restored %s from backup", spec.Dest)}, nil
}

// copyFileVerified copies src to dest and verifies the digest, removing
// dest on mismatch, matching the teacher's CopyFileVerified pattern.
func copyFileVerified(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	srcHasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, srcHasher), in); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("sync destination: %w", err)
	}

	destHash, err := hashFile(dest)
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	if destHash != hex.EncodeToString(srcHasher.Sum(nil)) {
		_ = os.Remove(dest)
		return fmt.Errorf("copy verification failed: digest mismatch")
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for verification: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash for verification: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
