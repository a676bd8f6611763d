// Package snapshot captures and restores the pre-image of a host mutation
// so that the rollback engine can reverse it. Snapshots are modeled as a
// closed tagged variant serialized through a disciplined {kind, payload}
// envelope, so the engine never inspects snapshot internals — only the
// handler that owns a given kind does.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the Snapshot tagged variant.
type Kind string

const (
	KindFile    Kind = "file"
	KindPackage Kind = "package"
	KindService Kind = "service"
	KindUser    Kind = "user"
	KindAnsible Kind = "ansible"
	KindMinimal Kind = "minimal"
)

// FileSnap is the pre-image for a file_copy step.
type FileSnap struct {
	Exists     bool   `json:"exists"`
	Size       int64  `json:"size,omitempty"`
	Mode       uint32 `json:"mode,omitempty"`
	OwnerUID   int    `json:"owner_uid,omitempty"`
	GroupGID   int    `json:"group_gid,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	BackupPath string `json:"backup_path,omitempty"`
}

// PackageSnap is the pre-image for an apt_package step.
type PackageSnap struct {
	Action            string   `json:"action"`
	AlreadyInstalled  []string `json:"already_installed,omitempty"`
	ToRemove          []string `json:"to_remove,omitempty"`
}

// ServiceSnap is the pre-image for a systemd_service step.
type ServiceSnap struct {
	WasActive  bool `json:"was_active"`
	WasEnabled bool `json:"was_enabled"`
}

// UserSnap is the pre-image for a user_management step.
type UserSnap struct {
	Existed  bool     `json:"existed"`
	UID      int      `json:"uid,omitempty"`
	GID      int      `json:"gid,omitempty"`
	Home     string   `json:"home,omitempty"`
	Shell    string   `json:"shell,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	IDOutput string   `json:"id_output,omitempty"`
}

// AnsibleSnap is the pre-image for an ansible_playbook step: identity and
// variables only, since reversal relies on a caller-supplied rollback
// playbook rather than a captured state diff.
type AnsibleSnap struct {
	Playbook string         `json:"playbook"`
	Vars     map[string]any `json:"vars,omitempty"`
}

// MinimalSnap records that capture failed or was not applicable. Handlers
// whose reversal needs the pre-image (file_copy, apt_package,
// user_management) return unrecoverable for such a step; systemd_service
// and ansible_playbook reversals do not read it and run as usual.
type MinimalSnap struct {
	Reason string `json:"reason"`
}

// Snapshot is the tagged-variant envelope persisted in the journal's
// snapshots.snapshot_data column.
type Snapshot struct {
	Kind        Kind        `json:"kind"`
	CapturedAt  time.Time   `json:"captured_at"`
	File        *FileSnap    `json:"file,omitempty"`
	Package     *PackageSnap `json:"package,omitempty"`
	Service     *ServiceSnap `json:"service,omitempty"`
	User        *UserSnap    `json:"user,omitempty"`
	Ansible     *AnsibleSnap `json:"ansible,omitempty"`
	Minimal     *MinimalSnap `json:"minimal,omitempty"`
}

// Encode serializes the snapshot to its on-disk JSON envelope.
func Encode(s *Snapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

// Decode parses a snapshot envelope from the journal's stored text.
func Decode(data string) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func newSnapshot(kind Kind) *Snapshot {
	return &Snapshot{Kind: kind, CapturedAt: time.Now().UTC()}
}

// NewFileSnap builds a file-kind snapshot envelope.
func NewFileSnap(payload FileSnap) *Snapshot {
	s := newSnapshot(KindFile)
	s.File = &payload
	return s
}

// NewPackageSnap builds a package-kind snapshot envelope.
func NewPackageSnap(payload PackageSnap) *Snapshot {
	s := newSnapshot(KindPackage)
	s.Package = &payload
	return s
}

// NewServiceSnap builds a service-kind snapshot envelope.
func NewServiceSnap(payload ServiceSnap) *Snapshot {
	s := newSnapshot(KindService)
	s.Service = &payload
	return s
}

// NewUserSnap builds a user-kind snapshot envelope.
func NewUserSnap(payload UserSnap) *Snapshot {
	s := newSnapshot(KindUser)
	s.User = &payload
	return s
}

// NewAnsibleSnap builds an ansible-kind snapshot envelope.
func NewAnsibleSnap(payload AnsibleSnap) *Snapshot {
	s := newSnapshot(KindAnsible)
	s.Ansible = &payload
	return s
}

// NewMinimalSnap builds a minimal-kind snapshot envelope recording why a
// fuller capture was not possible. A SnapshotFailure (spec.md §7) is
// recorded this way rather than aborting the transaction.
func NewMinimalSnap(reason string) *Snapshot {
	s := newSnapshot(KindMinimal)
	s.Minimal = &MinimalSnap{Reason: reason}
	return s
}
