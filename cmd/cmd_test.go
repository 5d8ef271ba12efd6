package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/ledger"
	"github.com/agentic-research/babelpatch/internal/worktree"
)

const testManifest = `{
  "include_dir": "openbabel",
  "cxx_namespace": "OpenBabel",
  "modules": [
    {"base": "format", "has_impl": true},
    {"subdir": "formats", "base": "smilesformat", "has_impl": true}
  ],
  "categories": [
    {"name": "Format", "base_class": "OBFormat", "header": "format.h", "host": "format.cpp"}
  ],
  "plugins": [
    {"category": "Format", "id": "smi", "source_file": "smilesformat.cpp", "class": "SMIFormat"}
  ]
}`

var testUpstream = map[string]string{
	"include/openbabel/format.h": `#include <openbabel/plugin.h>
namespace OpenBabel {
class OBFormat : public OBPlugin
{
public:
  virtual const char* Description() = 0;
};
}
`,
	"src/format.cpp": `#include <openbabel/format.h>
namespace OpenBabel {
} // namespace OpenBabel
`,
	"src/formats/smilesformat.cpp": `namespace OpenBabel {
class SMIFormat : public OBMoleculeFormat
{
};
SMIFormat theSMIFormat;
}
`,
}

type fixture struct {
	upstream string
	work     string
	manifest string
	ledger   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		upstream: filepath.Join(dir, "openbabel"),
		work:     filepath.Join(dir, "build", "openbabel-static"),
		manifest: filepath.Join(dir, "manifest.json"),
		ledger:   filepath.Join(dir, "ledger.db"),
	}
	for p, c := range testUpstream {
		full := filepath.Join(f.upstream, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(c), 0o644))
	}
	require.NoError(t, os.WriteFile(f.manifest, []byte(testManifest), 0o644))
	return f
}

func (f fixture) args(sub string, extra ...string) []string {
	args := []string{sub, "--upstream", f.upstream, "--work", f.work, "--manifest", f.manifest}
	return append(args, extra...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, f.args("run", "--ledger", f.ledger)...)
	require.NoError(t, err)
	assert.Contains(t, out, "state: ReadyForCompile")
	assert.Contains(t, out, "ledger run: 1")

	header, err := os.ReadFile(filepath.Join(f.work, "include", "openbabel", "format.h"))
	require.NoError(t, err)
	assert.Contains(t, string(header), "static OBFormat* FindType(const char* ID);")
	assert.FileExists(t, filepath.Join(f.work, "src", "babelpatch_glue.cpp"))
	assert.FileExists(t, filepath.Join(f.work, "compile_commands.json"))

	l, err := ledger.Open(f.ledger)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	runs, err := l.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ReadyForCompile", runs[0].State)
}

func TestRunCommand_InvalidPolicy(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, f.args("run", "--no-match", "sometimes", "--ledger", "")...)
	require.Error(t, err)
	// Reset for the tests that follow.
	_, err = execute(t, f.args("run", "--no-match", "warn", "--ledger", "")...)
	require.NoError(t, err)
}

func TestRunCommand_UnsafeWorkRoot(t *testing.T) {
	f := newFixture(t)
	cwd := t.TempDir()
	t.Chdir(cwd)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "keep.txt"), []byte("keep\n"), 0o644))

	for name, work := range map[string]string{
		"empty":             "",
		"dot":               ".",
		"filesystem root":   "/",
		"upstream itself":   f.upstream,
		"inside upstream":   filepath.Join(f.upstream, "build"),
		"contains upstream": filepath.Dir(f.upstream),
	} {
		t.Run(name, func(t *testing.T) {
			args := []string{"run", "--upstream", f.upstream, "--manifest", f.manifest, "--ledger", "", "--work", work}
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.True(t, perr.HasCode(err, perr.ErrConfig), err.Error())

			assert.FileExists(t, filepath.Join(f.upstream, "src", "format.cpp"))
			entries, err := os.ReadDir(cwd)
			require.NoError(t, err)
			require.Len(t, entries, 1, "nothing created or removed in the current directory")
			assert.Equal(t, "keep.txt", entries[0].Name())
		})
	}
}

func TestVerifyCommand(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, f.args("verify", "--ledger", f.ledger)...)
	require.NoError(t, err)
	assert.Contains(t, out, "are identical")
}

func TestRouterCommand(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, f.args("router", "Format")...)
	require.NoError(t, err)
	assert.Contains(t, out, "OBFormat* OBFormat::FindType(const char* ID) {")
	assert.Contains(t, out, `babel_id_equal(ID, "smi")`)

	_, err = execute(t, f.args("router", "Nope")...)
	require.Error(t, err)
}

func TestQueryCommand(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, f.args("query", "$.plugins[*].class")...)
	require.NoError(t, err)
	assert.Equal(t, "\"SMIFormat\"\n", out)
}

func TestBindingsCommand(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(t.TempDir(), "ids.go")
	_, err := execute(t, f.args("bindings", "--package", "obids", "-o", target)...)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "package obids")
	assert.Contains(t, string(data), `var FormatIDs = []string{"smi"}`)
}

func TestWriteDiff(t *testing.T) {
	up := memfs.New()
	require.NoError(t, util.WriteFile(up, "src/a.cpp", []byte("int a;\nint b;\n"), 0o644))
	require.NoError(t, util.WriteFile(up, "src/same.cpp", []byte("int s;\n"), 0o644))

	tree := worktree.New(memfs.New(), "openbabel")
	require.NoError(t, tree.WriteFile("src/a.cpp", []byte("int a;\n// int b;\n")))
	require.NoError(t, tree.WriteFile("src/same.cpp", []byte("int s;\n")))
	require.NoError(t, tree.WriteFile("src/glue.cpp", []byte("extern \"C\" {}\n")))

	var buf bytes.Buffer
	require.NoError(t, writeDiff(&buf, up, tree, nil, 1))
	out := buf.String()

	assert.Contains(t, out, "--- a/src/a.cpp\n+++ b/src/a.cpp\n")
	assert.Contains(t, out, "-int b;\n+// int b;\n")
	assert.Contains(t, out, "new file: src/glue.cpp\n")
	assert.NotContains(t, out, "same.cpp")
	assert.Less(t, strings.Index(out, "a.cpp"), strings.Index(out, "glue.cpp"))
}
