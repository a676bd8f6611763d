// Package manifest models package-install manifests: parsing, schema
// validation, templating, and merging.
package manifest

// StepKind discriminates the tagged Step variant.
type StepKind string

const (
	StepAptPackage      StepKind = "apt_package"
	StepFileCopy        StepKind = "file_copy"
	StepSystemdService  StepKind = "systemd_service"
	StepUserManagement  StepKind = "user_management"
	StepAnsiblePlaybook StepKind = "ansible_playbook"
)

// RollbackPolicy selects how a step is reversed.
type RollbackPolicy string

const (
	RollbackAuto   RollbackPolicy = "auto"
	RollbackManual RollbackPolicy = "manual"
	RollbackAnsible RollbackPolicy = "ansible"
)

// Package identifies the manifest's installable unit.
type Package struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	License     string `yaml:"license,omitempty" json:"license,omitempty"`
}

// Requirements describes host preconditions.
type Requirements struct {
	MinMemoryMB  int      `yaml:"min_memory_mb,omitempty" json:"min_memory_mb,omitempty"`
	MinDiskMB    int      `yaml:"min_disk_mb,omitempty" json:"min_disk_mb,omitempty"`
	OSVersion    string   `yaml:"os_version,omitempty" json:"os_version,omitempty"`
	Architecture []string `yaml:"architecture,omitempty" json:"architecture,omitempty"`
}

// AptPackageSpec is the payload for a StepAptPackage step.
type AptPackageSpec struct {
	Action      string   `yaml:"action" json:"action"`
	Packages    []string `yaml:"packages" json:"packages"`
	UpdateCache *bool    `yaml:"update_cache,omitempty" json:"update_cache,omitempty"`
}

// UpdateCacheOrDefault returns UpdateCache, defaulting to true when unset.
func (s AptPackageSpec) UpdateCacheOrDefault() bool {
	if s.UpdateCache == nil {
		return true
	}
	return *s.UpdateCache
}

// FileCopySpec is the payload for a StepFileCopy step.
type FileCopySpec struct {
	Src   string `yaml:"src" json:"src"`
	Dest  string `yaml:"dest" json:"dest"`
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	Mode  string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// SystemdServiceSpec is the payload for a StepSystemdService step.
type SystemdServiceSpec struct {
	Service string `yaml:"service" json:"service"`
	Action  string `yaml:"action" json:"action"`
}

// UserDataSpec carries optional user-management attributes.
type UserDataSpec struct {
	Home   string   `yaml:"home,omitempty" json:"home,omitempty"`
	Shell  string   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	System bool     `yaml:"system,omitempty" json:"system,omitempty"`
}

// UserManagementSpec is the payload for a StepUserManagement step.
type UserManagementSpec struct {
	Username string        `yaml:"username" json:"username"`
	Action   string        `yaml:"action" json:"action"`
	UserData *UserDataSpec `yaml:"user_data,omitempty" json:"user_data,omitempty"`
}

// AnsiblePlaybookSpec is the payload for a StepAnsiblePlaybook step.
type AnsiblePlaybookSpec struct {
	Playbook         string         `yaml:"playbook" json:"playbook"`
	RollbackPlaybook string         `yaml:"rollback_playbook,omitempty" json:"rollback_playbook,omitempty"`
	Vars             map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
	Inventory        string         `yaml:"inventory,omitempty" json:"inventory,omitempty"`
}

// Step is a closed tagged variant over the five step kinds. Exactly one of
// the kind-specific payload fields is populated, matching Kind.
type Step struct {
	Kind        StepKind       `yaml:"type" json:"type"`
	Rollback    RollbackPolicy `yaml:"rollback,omitempty" json:"rollback,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`

	AptPackage      *AptPackageSpec      `yaml:"-" json:"apt_package,omitempty"`
	FileCopy        *FileCopySpec        `yaml:"-" json:"file_copy,omitempty"`
	SystemdService  *SystemdServiceSpec  `yaml:"-" json:"systemd_service,omitempty"`
	UserManagement  *UserManagementSpec  `yaml:"-" json:"user_management,omitempty"`
	AnsiblePlaybook *AnsiblePlaybookSpec `yaml:"-" json:"ansible_playbook,omitempty"`
}

// RollbackOrDefault returns the step's rollback policy, defaulting to auto.
func (s Step) RollbackOrDefault() RollbackPolicy {
	if s.Rollback == "" {
		return RollbackAuto
	}
	return s.Rollback
}

// Manifest is the top-level document: package identity plus ordered steps.
type Manifest struct {
	Package      Package       `yaml:"package" json:"package"`
	InstallSteps []Step        `yaml:"install_steps" json:"install_steps"`
	PreInstall   []Step        `yaml:"pre_install,omitempty" json:"pre_install,omitempty"`
	PostInstall  []Step        `yaml:"post_install,omitempty" json:"post_install,omitempty"`
	Dependencies []string      `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Conflicts    []string      `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Requirements *Requirements `yaml:"requirements,omitempty" json:"requirements,omitempty"`
}
