// Package handler implements the step handler registry and the concrete
// adapters that shell out to (or directly manipulate, for file_copy) the
// host on behalf of a manifest step.
package handler

import (
	"context"
	"fmt"

	"pkginstall/internal/manifest"
	"pkginstall/internal/snapshot"
)

// Outcome classifies the result of a reverse operation, per spec.md §4.6.
type Outcome string

const (
	Reversed     Outcome = "reversed"
	NoOp         Outcome = "no_op"
	Unrecoverable Outcome = "unrecoverable"
)

// Result is returned by both Forward and Reverse.
type Result struct {
	Outcome Outcome
	Detail  string
}

// Capability is the uniform step-handler contract: a forward op and a
// reverse op for one step kind. forward may be retried once on transient
// failure at the engine's discretion (spec.md §4.4, §9); reverse must
// tolerate partial prior completion of forward.
type Capability interface {
	Kind() manifest.StepKind
	Forward(ctx context.Context, step manifest.Step) (Result, error)
	Reverse(ctx context.Context, step manifest.Step, snap *snapshot.Snapshot) (Result, error)
}

// Registry maps a step kind to its handler capability. It is populated at
// engine startup; a step whose kind has no registered handler fails
// validation rather than failing at execution time.
type Registry struct {
	handlers map[manifest.StepKind]Capability
}

// NewRegistry builds a registry from the given capabilities.
func NewRegistry(capabilities ...Capability) *Registry {
	r := &Registry{handlers: make(map[manifest.StepKind]Capability, len(capabilities))}
	for _, c := range capabilities {
		r.handlers[c.Kind()] = c
	}
	return r
}

// Lookup returns the capability registered for kind, or an error if none is
// registered.
func (r *Registry) Lookup(kind manifest.StepKind) (Capability, error) {
	cap, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("handler: no capability registered for step kind %q", kind)
	}
	return cap, nil
}

// Default constructs a registry with the standard host adapters for all
// five step kinds.
func Default(playbookDir string) *Registry {
	return NewRegistry(
		NewAptPackageHandler(),
		NewFileCopyHandler(),
		NewSystemdServiceHandler(),
		NewUserManagementHandler(),
		NewAnsiblePlaybookHandler(playbookDir),
	)
}
