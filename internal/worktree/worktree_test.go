package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "github.com/agentic-research/babelpatch/internal/errors"
)

func TestReset_RemovesStaleFiles(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src/stale.cpp", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "leftover.txt", []byte("x"), 0o644))

	tree := New(fs, "openbabel")
	require.NoError(t, tree.Reset())

	files, err := tree.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.True(t, tree.Exists("include/openbabel"))
	assert.True(t, tree.Exists("src"))
}

func TestReset_OnDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")

	tree := Open(root, "openbabel")
	require.NoError(t, tree.Reset(), "missing root is created")
	require.NoError(t, tree.WriteFile("src/a.cpp", []byte("int a;\n")))
	require.NoError(t, tree.Reset())

	_, err := os.Stat(filepath.Join(root, "src", "a.cpp"))
	assert.True(t, os.IsNotExist(err))
	info, err := os.Stat(filepath.Join(root, "include", "openbabel"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWalk_LexicalOrder(t *testing.T) {
	tree := New(memfs.New(), "openbabel")
	require.NoError(t, tree.Reset())
	for _, p := range []string{"src/z.cpp", "include/openbabel/b.h", "src/formats/a.cpp", "include/openbabel/a.h"} {
		require.NoError(t, tree.WriteFile(p, []byte(p)))
	}

	var seen []string
	require.NoError(t, tree.Walk(func(p string) error {
		seen = append(seen, p)
		return nil
	}))
	assert.Equal(t, []string{
		"include/openbabel/a.h",
		"include/openbabel/b.h",
		"src/formats/a.cpp",
		"src/z.cpp",
	}, seen)

	data, err := tree.ReadFile("src/z.cpp")
	require.NoError(t, err)
	assert.Equal(t, "src/z.cpp", string(data))
}

func TestReadFile_Missing(t *testing.T) {
	tree := New(memfs.New(), "openbabel")
	_, err := tree.ReadFile("src/none.cpp")
	require.Error(t, err)
	assert.True(t, perr.HasCode(err, perr.ErrIO))
}

func TestLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")

	l, err := Acquire(root)
	require.NoError(t, err)

	_, err = Acquire(root)
	require.Error(t, err)
	assert.True(t, perr.HasCode(err, perr.ErrLocked))

	require.NoError(t, l.Release())

	again, err := Acquire(root)
	require.NoError(t, err)
	require.NoError(t, again.Release())

	_, err = os.Stat(LockPath(root))
	assert.NoError(t, err)
}
