//go:build !unix

package lock

import (
	"fmt"
	"os"
)

// Lock is the non-POSIX fallback: an exclusive-create lockfile instead of
// flock(2). It provides the same fail-fast semantics but is not robust to
// a process that crashes without removing the file; the unix build
// (lock_unix.go) is preferred wherever available.
type Lock struct {
	path string
}

// Acquire creates <root>/.necessist/lock exclusively, failing if it
// already exists.
func Acquire(root string) (*Lock, error) {
	dir := root + "/.necessist"
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := dir + "/lock"

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("project root %s is locked by another necessist run: %w", root, err)
	}

	_ = f.Close()

	return &Lock{path: path}, nil
}

// Release removes the lockfile.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}
