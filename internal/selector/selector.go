// Package selector copies the modules a manifest names from the upstream
// tree into the working tree. It never rewrites content.
package selector

import (
	"errors"
	"os"
	"slices"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"

	"github.com/agentic-research/babelpatch/api"
	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/worktree"
)

// Select copies every module header (when present) and implementation (when
// HasImpl) from upstream into tree. A missing implementation is a CONFIG
// error naming the module. Returns the copied paths, sorted.
func Select(m *api.Manifest, upstream billy.Filesystem, tree *worktree.Tree, logger zerolog.Logger) ([]string, error) {
	var copied []string
	for _, mod := range m.Modules {
		hdr := mod.HeaderPath(m.IncludeDir)
		ok, err := copyFile(upstream, tree, hdr)
		if err != nil {
			return nil, err
		}
		if ok {
			copied = append(copied, hdr)
		} else {
			logger.Debug().Str("module", mod.Base).Str("path", hdr).Msg("no header, skipping")
		}

		if !mod.HasImpl {
			continue
		}
		impl := mod.ImplPath()
		ok, err = copyFile(upstream, tree, impl)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, perr.Newf(perr.ErrConfig, "module %s: %s not found upstream", mod.Base, impl).
				WithDetail("module", mod.Base).
				WithDetail("path", impl)
		}
		copied = append(copied, impl)
	}

	slices.Sort(copied)
	logger.Info().Int("files", len(copied)).Msg("selected")
	return copied, nil
}

// copyFile reports false when src does not exist upstream. The copy keeps
// the upstream permission bits.
func copyFile(upstream billy.Filesystem, tree *worktree.Tree, p string) (bool, error) {
	info, err := upstream.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrIO, "stat upstream %s", p)
	}
	data, err := util.ReadFile(upstream, p)
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrIO, "read upstream %s", p)
	}
	if err := tree.WriteFileMode(p, data, info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}
