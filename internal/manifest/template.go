package manifest

// Template returns a minimal valid manifest for the given package identity.
func Template(name, version string) *Manifest {
	updateCache := true
	return &Manifest{
		Package: Package{
			Name:        name,
			Version:     version,
			Description: "TODO: describe this package",
		},
		InstallSteps: []Step{
			{
				Kind: StepAptPackage,
				AptPackage: &AptPackageSpec{
					Action:      "install",
					Packages:    []string{"example-package"},
					UpdateCache: &updateCache,
				},
			},
		},
	}
}
