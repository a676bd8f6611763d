package manifest

import (
	"fmt"
	"regexp"
)

// ValidationFailure reports a manifest that failed schema validation. Path
// is a JSON-pointer-like location of the offending field.
type ValidationFailure struct {
	Path    string
	Message string
}

func (e *ValidationFailure) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var (
	packageNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	versionRe     = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+(-[a-zA-Z0-9._]+)?$`)
	aptPackageRe  = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)
	usernameRe    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
	modeRe        = regexp.MustCompile(`^[0-7]{3,4}$`)
)

var validStepKinds = map[StepKind]bool{
	StepAptPackage:      true,
	StepFileCopy:        true,
	StepSystemdService:  true,
	StepUserManagement:  true,
	StepAnsiblePlaybook: true,
}

var validRollbackPolicies = map[RollbackPolicy]bool{
	"":               true,
	RollbackAuto:     true,
	RollbackManual:   true,
	RollbackAnsible:  true,
}

// Validate enforces the manifest schema described in spec.md §3/§4.1. It
// returns the first ValidationFailure encountered; there is no partial
// acceptance.
func Validate(m *Manifest) error {
	if err := validatePackage(m.Package); err != nil {
		return err
	}
	if len(m.InstallSteps) == 0 {
		return &ValidationFailure{Path: "/install_steps", Message: "install_steps must be non-empty"}
	}
	for i, step := range m.InstallSteps {
		if err := validateStep(fmt.Sprintf("/install_steps/%d", i), step); err != nil {
			return err
		}
	}
	for i, step := range m.PreInstall {
		if err := validateStep(fmt.Sprintf("/pre_install/%d", i), step); err != nil {
			return err
		}
	}
	for i, step := range m.PostInstall {
		if err := validateStep(fmt.Sprintf("/post_install/%d", i), step); err != nil {
			return err
		}
	}
	return nil
}

func validatePackage(pkg Package) error {
	if pkg.Name == "" {
		return &ValidationFailure{Path: "/package/name", Message: "name is required"}
	}
	if !packageNameRe.MatchString(pkg.Name) {
		return &ValidationFailure{Path: "/package/name", Message: "name must match ^[A-Za-z0-9_-]+$"}
	}
	if pkg.Version == "" {
		return &ValidationFailure{Path: "/package/version", Message: "version is required"}
	}
	if !versionRe.MatchString(pkg.Version) {
		return &ValidationFailure{Path: "/package/version", Message: "version must be MAJOR.MINOR.PATCH[-PRERELEASE]"}
	}
	return nil
}

func validateStep(path string, step Step) error {
	if !validStepKinds[step.Kind] {
		return &ValidationFailure{Path: path + "/type", Message: fmt.Sprintf("unknown step type %q", step.Kind)}
	}
	if !validRollbackPolicies[step.Rollback] {
		return &ValidationFailure{Path: path + "/rollback", Message: fmt.Sprintf("invalid rollback policy %q", step.Rollback)}
	}

	switch step.Kind {
	case StepAptPackage:
		return validateAptPackage(path, step.AptPackage)
	case StepFileCopy:
		return validateFileCopy(path, step.FileCopy)
	case StepSystemdService:
		return validateSystemdService(path, step.SystemdService)
	case StepUserManagement:
		return validateUserManagement(path, step.UserManagement)
	case StepAnsiblePlaybook:
		return validateAnsiblePlaybook(path, step.AnsiblePlaybook)
	}
	return nil
}

func validateAptPackage(path string, spec *AptPackageSpec) error {
	if spec == nil {
		return &ValidationFailure{Path: path, Message: "apt_package requires action and packages"}
	}
	switch spec.Action {
	case "install", "remove", "update":
	default:
		return &ValidationFailure{Path: path + "/action", Message: fmt.Sprintf("invalid action %q", spec.Action)}
	}
	if len(spec.Packages) == 0 {
		return &ValidationFailure{Path: path + "/packages", Message: "packages must be non-empty"}
	}
	for i, name := range spec.Packages {
		if !aptPackageRe.MatchString(name) {
			return &ValidationFailure{Path: fmt.Sprintf("%s/packages/%d", path, i), Message: fmt.Sprintf("invalid package name %q", name)}
		}
	}
	return nil
}

func validateFileCopy(path string, spec *FileCopySpec) error {
	if spec == nil {
		return &ValidationFailure{Path: path, Message: "file_copy requires src and dest"}
	}
	if spec.Src == "" {
		return &ValidationFailure{Path: path + "/src", Message: "src is required"}
	}
	if spec.Dest == "" {
		return &ValidationFailure{Path: path + "/dest", Message: "dest is required"}
	}
	if spec.Mode != "" && !modeRe.MatchString(spec.Mode) {
		return &ValidationFailure{Path: path + "/mode", Message: fmt.Sprintf("mode must be 3-4 octal digits, got %q", spec.Mode)}
	}
	return nil
}

func validateSystemdService(path string, spec *SystemdServiceSpec) error {
	if spec == nil {
		return &ValidationFailure{Path: path, Message: "systemd_service requires service and action"}
	}
	if spec.Service == "" {
		return &ValidationFailure{Path: path + "/service", Message: "service is required"}
	}
	switch spec.Action {
	case "enable", "disable", "start", "stop", "restart":
	default:
		return &ValidationFailure{Path: path + "/action", Message: fmt.Sprintf("invalid action %q", spec.Action)}
	}
	return nil
}

func validateUserManagement(path string, spec *UserManagementSpec) error {
	if spec == nil {
		return &ValidationFailure{Path: path, Message: "user_management requires username and action"}
	}
	if !usernameRe.MatchString(spec.Username) {
		return &ValidationFailure{Path: path + "/username", Message: fmt.Sprintf("invalid username %q", spec.Username)}
	}
	switch spec.Action {
	case "create", "remove", "modify":
	default:
		return &ValidationFailure{Path: path + "/action", Message: fmt.Sprintf("invalid action %q", spec.Action)}
	}
	return nil
}

func validateAnsiblePlaybook(path string, spec *AnsiblePlaybookSpec) error {
	if spec == nil || spec.Playbook == "" {
		return &ValidationFailure{Path: path + "/playbook", Message: "playbook is required"}
	}
	return nil
}
