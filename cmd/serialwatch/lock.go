package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// portLockPath maps a port name to its lock file under dir.
func portLockPath(dir, port string) string {
	name := strings.TrimPrefix(strings.TrimSpace(port), "/dev/")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(dir, name+".lock")
}

// acquirePortLock takes the advisory lock that keeps two consoles off the
// same device. The caller must Unlock it.
func acquirePortLock(dir, port string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %q: %w", dir, err)
	}
	path := portLockPath(dir, port)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("port %s is already attached to another console (lock %s)", port, path)
	}
	return lock, nil
}
