package linter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_CleanPatchedHeader(t *testing.T) {
	src := []byte(`// #include <openbabel/plugin.h> (static build)
namespace OpenBabel {
class OBFormat /* : public OBPlugin */
{
public:
  // typedef OBPlugin::PluginIterator Formatpos;
  // MAKE_PLUGIN(OBFormat)
  static OBFormat* FindType(const char* ID);
};
}
`)
	diags, err := Lint(src, "include/openbabel/format.h")
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestLint_LiveBaseClass(t *testing.T) {
	src := []byte(`namespace OpenBabel {
class OBOp : public OBPlugin
{
};
}
`)
	diags, err := Lint(src, "op.h")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "live reference to OBPlugin", diags[0].Message)
	assert.Equal(t, uint32(1), diags[0].Line)
	assert.Equal(t, "line 2: live reference to OBPlugin", diags[0].String())
}

func TestLint_LiveQualifiedUse(t *testing.T) {
	src := []byte(`OBFormat* Find(const char* ID) {
  return static_cast<OBFormat*>(OBPlugin::GetPlugin("formats", ID));
}
`)
	diags, err := Lint(src, "obconversion.cpp")
	require.NoError(t, err)
	assert.NotEmpty(t, diags)
}

func TestLint_DisabledBlockIgnored(t *testing.T) {
	src := []byte(`#if 0 // babelpatch:obconversion.cpp:next-format
bool OBConversion::GetNextFormat(Formatpos& itr, const char*& str, OBFormat*& pFormat)
{
  return OBPlugin::GetNextPlugin(itr);
}
#endif // babelpatch:obconversion.cpp:next-format
`)
	diags, err := Lint(src, "obconversion.cpp")
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestLint_NonCppPassthrough(t *testing.T) {
	diags, err := Lint([]byte("OBPlugin MAKE_PLUGIN"), "README.txt")
	require.NoError(t, err)
	assert.Nil(t, diags)
}
