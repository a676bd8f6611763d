package main

import (
	"errors"
	"fmt"
	"testing"

	"pkginstall/internal/precondition"
)

func TestExitCodeFor_Success(t *testing.T) {
	if got := exitCodeFor(nil); got != exitOK {
		t.Fatalf("exitCodeFor(nil) = %d, want %d", got, exitOK)
	}
}

func TestExitCodeFor_PreconditionFailure(t *testing.T) {
	err := &precondition.Failure{Results: []precondition.Result{{Name: "privilege", Detail: "not root"}}}
	if got := exitCodeFor(err); got != exitPrecondition {
		t.Fatalf("exitCodeFor(precondition failure) = %d, want %d", got, exitPrecondition)
	}
}

func TestExitCodeFor_WrappedPreconditionFailure(t *testing.T) {
	err := errors.New("wrap")
	wrapped := fmt.Errorf("install: %w", &precondition.Failure{Results: nil})
	if got := exitCodeFor(wrapped); got != exitPrecondition {
		t.Fatalf("exitCodeFor(wrapped precondition failure) = %d, want %d", got, exitPrecondition)
	}
	if got := exitCodeFor(err); got != exitFailure {
		t.Fatalf("exitCodeFor(generic error) = %d, want %d", got, exitFailure)
	}
}
