package main

import (
	"errors"

	"pkginstall/internal/precondition"
)

// Exit codes follow spec.md §6: 0 is success, 1 is any operational failure
// (usage, schema validation, step execution, rollback), 2 is a precondition
// failure such as missing privilege or an unmet host requirement that the
// caller did not bypass with --force.
const (
	exitOK           = 0
	exitFailure      = 1
	exitPrecondition = 2
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	var preErr *precondition.Failure
	if errors.As(err, &preErr) {
		return exitPrecondition
	}

	return exitFailure
}
