// Package lock provides the host-wide advisory lock that enforces the
// engine's single-writer concurrency model (spec.md §5).
package lock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrBusy is returned when the advisory lock is already held by another
// process. The CLI surfaces this as EngineBusy without touching any state.
var ErrBusy = errors.New("lock: another installer instance is already running")

// Lock wraps a filesystem advisory lock.
type Lock struct {
	flock *flock.Flock
	path  string
}

// TryAcquire attempts to acquire the advisory lock at path without
// blocking. On contention it returns ErrBusy immediately.
func TryAcquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return &Lock{flock: fl, path: path}, nil
}

// Release drops the advisory lock.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}

// Path returns the lockfile path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}
