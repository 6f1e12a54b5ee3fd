//go:build unix

// Package lock implements the root advisory lock from spec §4.8: at
// process start the core acquires an exclusive advisory lock on the
// project root so concurrent necessist runs on the same tree fail fast.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock holds an open file descriptor with an exclusive flock(2) held on
// it, released by Release or process exit.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking advisory lock on
// <root>/.necessist/lock, creating the file and its parent directory if
// needed. It returns a wrapped error identifying the lock as held by
// another process when the lock is contended, matching spec §4.8's
// "concurrent Necessist runs ... fail fast with a clear error".
func Acquire(root string) (*Lock, error) {
	dir := root + "/.necessist"
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := dir + "/lock"

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("project root %s is locked by another necessist run: %w", root, err)
	}

	return &Lock{f: f}, nil
}

// Release releases the lock and closes the underlying file descriptor. It
// is safe to call once on every exit path (normal, error, or signal).
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}

	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()

	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}
