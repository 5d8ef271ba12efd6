package worktree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	perr "github.com/agentic-research/babelpatch/internal/errors"
)

// Lock is an exclusive advisory lock on a working root. It lives in a
// sibling file since the root itself is deleted on every run.
type Lock struct {
	path string
	file *os.File
}

// LockPath returns the lock file guarding root.
func LockPath(root string) string {
	return filepath.Clean(root) + ".lock"
}

// Acquire takes the lock on root without blocking. A second pipeline on the
// same root fails with LOCKED.
func Acquire(root string) (*Lock, error) {
	p := LockPath(root)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, perr.Newf(perr.ErrLocked, "working root %s is in use", root).
				WithDetail("lock", p)
		}
		return nil, fmt.Errorf("flock %s: %w", p, err)
	}

	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: p, file: f}, nil
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return l.file.Close()
}
