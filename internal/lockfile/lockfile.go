// Package lockfile provides the coarse exclusive lock that keeps two
// apply/unapply runs from mutating the same snapshot concurrently. This is a
// concurrency primitive, distinct from the document's policy lock flag.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrHeld means another run currently holds the lock.
var ErrHeld = errors.New("another run is in progress")

// Lock is a held file lock. Release it with Unlock.
type Lock struct {
	f *os.File
}

// Acquire takes a non-blocking exclusive flock on path, creating the file if
// needed. The lock is held for the duration of the run and released by
// Unlock (or implicitly when the process exits).
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock file %s)", ErrHeld, path)
		}
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
