// Package build hands a patched working tree to the native toolchain: it
// adds the fixed glue translation unit, emits a compilation database and
// optionally compiles everything into one static archive.
package build

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentic-research/babelpatch/internal/config"
	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/worktree"
)

//go:embed glue.cpp
var glue []byte

// GluePath is where the glue unit lands in the working tree.
const GluePath = "src/babelpatch_glue.cpp"

// CompileDB is the compilation database file name.
const CompileDB = "compile_commands.json"

// ObjDir holds object files, relative to the working root.
const ObjDir = "obj"

// Command is one entry of a compilation database.
type Command struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Output    string   `json:"output"`
}

// Plan is everything needed to compile a working tree.
type Plan struct {
	// Root is the absolute working root.
	Root       string
	IncludeDir string
	Sources    []string
	Compile    config.Compile
}

// WriteGlue adds the glue unit to tree.
func WriteGlue(tree *worktree.Tree) error {
	return tree.WriteFile(GluePath, glue)
}

// NewPlan collects every translation unit in files, sorted.
func NewPlan(root, includeDir string, files []string, c config.Compile) (Plan, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Plan{}, perr.Wrapf(err, perr.ErrIO, "resolve %s", root)
	}
	p := Plan{Root: abs, IncludeDir: includeDir, Compile: c}
	for _, f := range files {
		switch strings.ToLower(path.Ext(f)) {
		case ".cpp", ".cc", ".cxx":
			p.Sources = append(p.Sources, f)
		}
	}
	slices.Sort(p.Sources)
	return p, nil
}

// Object returns the object path for a source, relative to the root. The
// source directories are mirrored under ObjDir.
func Object(src string) string {
	name := strings.TrimSuffix(src, path.Ext(src))
	name = strings.TrimPrefix(name, "src/")
	return path.Join(ObjDir, name+".o")
}

// Commands returns one compiler invocation per source.
func (p Plan) Commands() []Command {
	cmds := make([]Command, 0, len(p.Sources))
	for _, src := range p.Sources {
		args := []string{p.Compile.CXX}
		args = append(args, p.Compile.Flags...)
		args = append(args,
			"-I"+filepath.Join(p.Root, "include"),
			"-I"+filepath.Join(p.Root, "include", p.IncludeDir),
			"-I"+filepath.Join(p.Root, "src"),
			"-c", src,
			"-o", Object(src),
		)
		cmds = append(cmds, Command{
			Directory: p.Root,
			File:      src,
			Arguments: args,
			Output:    Object(src),
		})
	}
	return cmds
}

// WriteCompileDB writes compile_commands.json at the root of tree.
func WriteCompileDB(tree *worktree.Tree, p Plan) error {
	data, err := json.MarshalIndent(p.Commands(), "", "  ")
	if err != nil {
		return err
	}
	return tree.WriteFile(CompileDB, append(data, '\n'))
}

// Compile runs every command in order and archives the objects. The first
// non-zero exit aborts with COMPILE and the tool output attached.
func Compile(ctx context.Context, p Plan, logger zerolog.Logger) (string, error) {
	objs := make([]string, 0, len(p.Sources))
	for _, c := range p.Commands() {
		dir := filepath.Join(p.Root, filepath.FromSlash(path.Dir(c.Output)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", perr.Wrap(err, perr.ErrIO, "create object directory")
		}
		if err := run(ctx, p.Root, c.Arguments); err != nil {
			return "", err
		}
		logger.Debug().Str("file", c.File).Msg("compiled")
		objs = append(objs, c.Output)
	}

	args := append([]string{p.Compile.AR, "rcs", p.Compile.Archive}, objs...)
	if err := run(ctx, p.Root, args); err != nil {
		return "", err
	}
	out := filepath.Join(p.Root, p.Compile.Archive)
	logger.Info().Int("objects", len(objs)).Str("archive", out).Msg("archived")
	return out, nil
}

func run(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		e := perr.Newf(perr.ErrCompile, "%s", strings.Join(args, " ")).WithDetail("output", string(out))
		e.Wrapped = err
		return e
	}
	return nil
}
