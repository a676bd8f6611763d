package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pkginstall/internal/manifest"
)

// Snapshotter captures the pre-image for a step before its forward op runs.
// File-copy backups are written under Dir so the journal row itself stays
// small (the snapshot_data column holds the file's metadata and its
// BackupPath, not its bytes).
type Snapshotter struct {
	Dir string
}

// New returns a Snapshotter writing file backups under dir.
func New(dir string) *Snapshotter {
	return &Snapshotter{Dir: dir}
}

// Capture produces a snapshot sufficient to reverse the given step, per the
// per-kind policy in spec.md §4.3. A capture failure is recorded as a
// MinimalSnap rather than propagated, per spec.md: "A snapshot whose capture
// fails records the error but does not abort the transaction."
func (s *Snapshotter) Capture(ctx context.Context, txID int64, order int, step manifest.Step) *Snapshot {
	var snap *Snapshot
	var err error

	switch step.Kind {
	case manifest.StepFileCopy:
		snap, err = s.captureFile(txID, order, step.FileCopy)
	case manifest.StepAptPackage:
		snap, err = s.capturePackage(ctx, step.AptPackage)
	case manifest.StepSystemdService:
		snap, err = s.captureService(ctx, step.SystemdService)
	case manifest.StepUserManagement:
		snap, err = s.captureUser(ctx, step.UserManagement)
	case manifest.StepAnsiblePlaybook:
		snap, err = s.captureAnsible(step.AnsiblePlaybook)
	default:
		err = fmt.Errorf("unknown step type %q", step.Kind)
	}

	if err != nil {
		return NewMinimalSnap(err.Error())
	}
	return snap
}

func (s *Snapshotter) captureFile(txID int64, order int, spec *manifest.FileCopySpec) (*Snapshot, error) {
	if spec == nil {
		return nil, fmt.Errorf("file_copy step missing payload")
	}
	info, err := os.Stat(spec.Dest)
	if os.IsNotExist(err) {
		return NewFileSnap(FileSnap{Exists: false}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", spec.Dest, err)
	}

	backupPath, err := s.backupFile(txID, order, spec.Dest)
	if err != nil {
		return nil, err
	}

	payload := FileSnap{
		Exists:     true,
		Size:       info.Size(),
		Mode:       uint32(info.Mode().Perm()),
		ModifiedAt: info.ModTime().UTC().Format(time.RFC3339Nano),
		BackupPath: backupPath,
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		payload.OwnerUID = int(stat.Uid)
		payload.GroupGID = int(stat.Gid)
	}
	return NewFileSnap(payload), nil
}

func (s *Snapshotter) backupFile(txID int64, order int, src string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := fmt.Sprintf("tx%d-step%d-%s.backup", txID, order, filepath.Base(src))
	dest := filepath.Join(s.Dir, name)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s for backup: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", dest, err)
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, hasher)); err != nil {
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("sync backup: %w", err)
	}

	backupHash, err := hashBackup(dest)
	if err != nil {
		return "", err
	}
	if backupHash != hex.EncodeToString(hasher.Sum(nil)) {
		return "", fmt.Errorf("backup verification failed for %s: digest mismatch", src)
	}
	return dest, nil
}

func hashBackup(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open backup for verification: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash backup for verification: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *Snapshotter) capturePackage(ctx context.Context, spec *manifest.AptPackageSpec) (*Snapshot, error) {
	if spec == nil {
		return nil, fmt.Errorf("apt_package step missing payload")
	}
	payload := PackageSnap{Action: spec.Action}
	switch spec.Action {
	case "install":
		for _, pkg := range spec.Packages {
			if dpkgInstalled(ctx, pkg) {
				payload.AlreadyInstalled = append(payload.AlreadyInstalled, pkg)
			}
		}
	case "remove":
		for _, pkg := range spec.Packages {
			if dpkgInstalled(ctx, pkg) {
				payload.ToRemove = append(payload.ToRemove, pkg)
			}
		}
	}
	return NewPackageSnap(payload), nil
}

func dpkgInstalled(ctx context.Context, pkg string) bool {
	cmd := exec.CommandContext(ctx, "dpkg", "-s", pkg)
	return cmd.Run() == nil
}

func (s *Snapshotter) captureService(ctx context.Context, spec *manifest.SystemdServiceSpec) (*Snapshot, error) {
	if spec == nil {
		return nil, fmt.Errorf("systemd_service step missing payload")
	}
	active := systemctlQuery(ctx, "is-active", spec.Service)
	enabled := systemctlQuery(ctx, "is-enabled", spec.Service)
	return NewServiceSnap(ServiceSnap{WasActive: active, WasEnabled: enabled}), nil
}

func systemctlQuery(ctx context.Context, subcommand, service string) bool {
	cmd := exec.CommandContext(ctx, "systemctl", subcommand, service)
	out, _ := cmd.Output()
	result := strings.TrimSpace(string(out))
	return result == "active" || result == "enabled"
}

func (s *Snapshotter) captureUser(ctx context.Context, spec *manifest.UserManagementSpec) (*Snapshot, error) {
	if spec == nil {
		return nil, fmt.Errorf("user_management step missing payload")
	}
	cmd := exec.CommandContext(ctx, "id", spec.Username)
	out, err := cmd.Output()
	if err != nil {
		return NewUserSnap(UserSnap{Existed: false}), nil
	}

	payload := UserSnap{Existed: true, IDOutput: strings.TrimSpace(string(out))}
	if uid, gid, ok := parseIDOutput(payload.IDOutput); ok {
		payload.UID = uid
		payload.GID = gid
	}
	if home, shell, ok := passwdEntry(ctx, spec.Username); ok {
		payload.Home = home
		payload.Shell = shell
	}
	if groups, ok := groupNames(ctx, spec.Username); ok {
		payload.Groups = groups
	}
	return NewUserSnap(payload), nil
}

// passwdEntry reads the home directory and login shell from getent passwd,
// the same database useradd/usermod consult, so reverse can recreate a
// removed user with its original home and shell.
func passwdEntry(ctx context.Context, username string) (home, shell string, ok bool) {
	out, err := exec.CommandContext(ctx, "getent", "passwd", username).Output()
	if err != nil {
		return "", "", false
	}
	fields := strings.Split(strings.TrimSpace(string(out)), ":")
	if len(fields) < 7 {
		return "", "", false
	}
	return fields[5], fields[6], true
}

// groupNames reads a user's supplementary group names via id -Gn, matching
// the -G argument usermod/useradd expect on reverse.
func groupNames(ctx context.Context, username string) ([]string, bool) {
	out, err := exec.CommandContext(ctx, "id", "-Gn", username).Output()
	if err != nil {
		return nil, false
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

// parseIDOutput extracts uid/gid from a line like "uid=1000(alice) gid=1000(alice) groups=...".
func parseIDOutput(line string) (int, int, bool) {
	uid, uidOK := extractIDField(line, "uid=")
	gid, gidOK := extractIDField(line, "gid=")
	return uid, gid, uidOK && gidOK
}

func extractIDField(line, prefix string) (int, bool) {
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len(prefix):]
	end := strings.IndexAny(rest, "( ")
	if end < 0 {
		end = len(rest)
	}
	value, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return value, true
}

func (s *Snapshotter) captureAnsible(spec *manifest.AnsiblePlaybookSpec) (*Snapshot, error) {
	if spec == nil {
		return nil, fmt.Errorf("ansible_playbook step missing payload")
	}
	return NewAnsibleSnap(AnsibleSnap{Playbook: spec.Playbook, Vars: spec.Vars}), nil
}
