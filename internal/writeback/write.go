package writeback

import (
	"fmt"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// DefaultMode is the permission of newly created files.
const DefaultMode os.FileMode = 0o644

// WriteFile replaces p on fs with content. The write is atomic: content is
// written to a temp file in the same directory first, then renamed over p.
// An existing file keeps its permissions; a new one gets DefaultMode.
func WriteFile(fs billy.Filesystem, p string, content []byte) error {
	mode := DefaultMode
	if info, err := fs.Stat(p); err == nil {
		mode = info.Mode().Perm()
	}
	return WriteFileMode(fs, p, content, mode)
}

// WriteFileMode is WriteFile with an explicit permission for the result.
func WriteFileMode(fs billy.Filesystem, p string, content []byte, mode os.FileMode) error {
	ch, ok := fs.(billy.Chmod)
	if !ok {
		return fmt.Errorf("write %s: filesystem cannot set permissions", p)
	}

	dir := path.Dir(p)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := util.TempFile(fs, dir, ".babelpatch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	if err := ch.Chmod(tmpName, mode.Perm()); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("chmod temp: %w", err)
	}

	if err := fs.Rename(tmpName, p); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", p, err)
	}
	return nil
}
