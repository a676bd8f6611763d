package manifest

// Merge produces a new manifest where scalar fields in package and
// requirements are overridden by override's values when set, and sequence
// fields are concatenated base-then-override.
func Merge(base, override *Manifest) *Manifest {
	if base == nil {
		base = &Manifest{}
	}
	if override == nil {
		override = &Manifest{}
	}

	result := &Manifest{
		Package:      mergePackage(base.Package, override.Package),
		InstallSteps: append(append([]Step{}, base.InstallSteps...), override.InstallSteps...),
		PreInstall:   append(append([]Step{}, base.PreInstall...), override.PreInstall...),
		PostInstall:  append(append([]Step{}, base.PostInstall...), override.PostInstall...),
		Dependencies: append(append([]string{}, base.Dependencies...), override.Dependencies...),
		Conflicts:    append(append([]string{}, base.Conflicts...), override.Conflicts...),
		Requirements: mergeRequirements(base.Requirements, override.Requirements),
	}
	return result
}

func mergePackage(base, override Package) Package {
	result := base
	if override.Name != "" {
		result.Name = override.Name
	}
	if override.Version != "" {
		result.Version = override.Version
	}
	if override.Description != "" {
		result.Description = override.Description
	}
	if override.Author != "" {
		result.Author = override.Author
	}
	if override.License != "" {
		result.License = override.License
	}
	return result
}

func mergeRequirements(base, override *Requirements) *Requirements {
	if base == nil && override == nil {
		return nil
	}
	result := &Requirements{}
	if base != nil {
		*result = *base
	}
	if override == nil {
		return result
	}
	if override.MinMemoryMB != 0 {
		result.MinMemoryMB = override.MinMemoryMB
	}
	if override.MinDiskMB != 0 {
		result.MinDiskMB = override.MinDiskMB
	}
	if override.OSVersion != "" {
		result.OSVersion = override.OSVersion
	}
	if len(override.Architecture) != 0 {
		result.Architecture = override.Architecture
	}
	return result
}
