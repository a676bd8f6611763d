package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes a manifest document. Both textual encodings named in the
// external interface (human-oriented indentation, and flow/object-notation)
// are valid YAML, so a single yaml.v3 decode handles both.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ValidationFailure{Path: "", Message: fmt.Sprintf("parse manifest: %v", err)}
	}
	return &m, nil
}

// stepAlias mirrors Step's flat on-the-wire shape for generic decoding.
type stepAlias struct {
	Kind        StepKind       `yaml:"type"`
	Rollback    RollbackPolicy `yaml:"rollback,omitempty"`
	Description string         `yaml:"description,omitempty"`

	Action      string   `yaml:"action,omitempty"`
	Packages    []string `yaml:"packages,omitempty"`
	UpdateCache *bool    `yaml:"update_cache,omitempty"`

	Src   string `yaml:"src,omitempty"`
	Dest  string `yaml:"dest,omitempty"`
	Owner string `yaml:"owner,omitempty"`
	Group string `yaml:"group,omitempty"`
	Mode  string `yaml:"mode,omitempty"`

	Service string `yaml:"service,omitempty"`

	Username string        `yaml:"username,omitempty"`
	UserData *UserDataSpec `yaml:"user_data,omitempty"`

	Playbook         string         `yaml:"playbook,omitempty"`
	RollbackPlaybook string         `yaml:"rollback_playbook,omitempty"`
	Vars             map[string]any `yaml:"vars,omitempty"`
	Inventory        string         `yaml:"inventory,omitempty"`
}

// UnmarshalYAML decodes the flat on-the-wire step representation into the
// tagged-variant Step, populating exactly the payload matching Kind.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var alias stepAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}

	s.Kind = alias.Kind
	s.Rollback = alias.Rollback
	s.Description = alias.Description

	switch alias.Kind {
	case StepAptPackage:
		s.AptPackage = &AptPackageSpec{
			Action:      alias.Action,
			Packages:    alias.Packages,
			UpdateCache: alias.UpdateCache,
		}
	case StepFileCopy:
		s.FileCopy = &FileCopySpec{
			Src:   alias.Src,
			Dest:  alias.Dest,
			Owner: alias.Owner,
			Group: alias.Group,
			Mode:  alias.Mode,
		}
	case StepSystemdService:
		s.SystemdService = &SystemdServiceSpec{
			Service: alias.Service,
			Action:  alias.Action,
		}
	case StepUserManagement:
		s.UserManagement = &UserManagementSpec{
			Username: alias.Username,
			Action:   alias.Action,
			UserData: alias.UserData,
		}
	case StepAnsiblePlaybook:
		s.AnsiblePlaybook = &AnsiblePlaybookSpec{
			Playbook:         alias.Playbook,
			RollbackPlaybook: alias.RollbackPlaybook,
			Vars:             alias.Vars,
			Inventory:        alias.Inventory,
		}
	default:
		// Unknown kinds are accepted at parse time; Validate reports them so
		// that validation failures carry a path rather than a parse error.
	}
	return nil
}

// MarshalYAML flattens the tagged-variant Step back into its on-the-wire shape.
func (s Step) MarshalYAML() (any, error) {
	alias := stepAlias{
		Kind:        s.Kind,
		Rollback:    s.Rollback,
		Description: s.Description,
	}
	switch s.Kind {
	case StepAptPackage:
		if s.AptPackage != nil {
			alias.Action = s.AptPackage.Action
			alias.Packages = s.AptPackage.Packages
			alias.UpdateCache = s.AptPackage.UpdateCache
		}
	case StepFileCopy:
		if s.FileCopy != nil {
			alias.Src = s.FileCopy.Src
			alias.Dest = s.FileCopy.Dest
			alias.Owner = s.FileCopy.Owner
			alias.Group = s.FileCopy.Group
			alias.Mode = s.FileCopy.Mode
		}
	case StepSystemdService:
		if s.SystemdService != nil {
			alias.Service = s.SystemdService.Service
			alias.Action = s.SystemdService.Action
		}
	case StepUserManagement:
		if s.UserManagement != nil {
			alias.Username = s.UserManagement.Username
			alias.Action = s.UserManagement.Action
			alias.UserData = s.UserManagement.UserData
		}
	case StepAnsiblePlaybook:
		if s.AnsiblePlaybook != nil {
			alias.Playbook = s.AnsiblePlaybook.Playbook
			alias.RollbackPlaybook = s.AnsiblePlaybook.RollbackPlaybook
			alias.Vars = s.AnsiblePlaybook.Vars
			alias.Inventory = s.AnsiblePlaybook.Inventory
		}
	}
	return alias, nil
}

// Emit serializes a manifest back to its YAML textual form.
func Emit(m *Manifest) ([]byte, error) {
	return yaml.Marshal(m)
}
