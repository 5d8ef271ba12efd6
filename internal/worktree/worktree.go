// Package worktree owns the lifecycle of the disposable working tree the
// pipeline selects into and patches in place.
package worktree

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/writeback"
)

// Tree is a working tree rooted at the root of fs.
type Tree struct {
	fs         billy.Filesystem
	includeDir string
}

// New wraps fs. includeDir is the namespace directory under include/.
func New(fs billy.Filesystem, includeDir string) *Tree {
	return &Tree{fs: fs, includeDir: includeDir}
}

// Open returns a tree over the on-disk directory root.
func Open(root, includeDir string) *Tree {
	return New(osfs.New(root), includeDir)
}

func (t *Tree) FS() billy.Filesystem { return t.fs }

// Reset removes everything in the tree and recreates the empty skeleton.
// Nothing from a previous run survives.
func (t *Tree) Reset() error {
	entries, err := t.fs.ReadDir("/")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return perr.Wrap(err, perr.ErrIO, "list working tree")
	}
	for _, e := range entries {
		if err := util.RemoveAll(t.fs, e.Name()); err != nil {
			return perr.Wrapf(err, perr.ErrIO, "remove %s", e.Name())
		}
	}
	for _, dir := range []string{path.Join("include", t.includeDir), "src"} {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrIO, "create %s", dir)
		}
	}
	return nil
}

// Files returns the slash-separated path of every regular file, sorted.
func (t *Tree) Files() ([]string, error) {
	var out []string
	err := util.Walk(t.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			out = append(out, relative(p))
		}
		return nil
	})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrIO, "walk working tree")
	}
	slices.Sort(out)
	return out, nil
}

// Walk calls fn for every regular file in lexical order.
func (t *Tree) Walk(fn func(p string) error) error {
	files, err := t.Files()
	if err != nil {
		return err
	}
	for _, p := range files {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) ReadFile(p string) ([]byte, error) {
	data, err := util.ReadFile(t.fs, p)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrIO, "read %s", p)
	}
	return data, nil
}

// WriteFile atomically replaces p.
func (t *Tree) WriteFile(p string, data []byte) error {
	if err := writeback.WriteFile(t.fs, p, data); err != nil {
		return perr.Wrapf(err, perr.ErrIO, "write %s", p)
	}
	return nil
}

// WriteFileMode atomically replaces p and sets its permission to mode.
func (t *Tree) WriteFileMode(p string, data []byte, mode os.FileMode) error {
	if err := writeback.WriteFileMode(t.fs, p, data, mode); err != nil {
		return perr.Wrapf(err, perr.ErrIO, "write %s", p)
	}
	return nil
}

// Exists reports whether p is present in the tree.
func (t *Tree) Exists(p string) bool {
	_, err := t.fs.Stat(p)
	return err == nil
}

func relative(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
