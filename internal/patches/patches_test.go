package patches

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/rules"
)

const formatHeader = `#include <openbabel/plugin.h>
#include <openbabel/babelconfig.h>

namespace OpenBabel {
class OBCONV OBFormat : public OBPlugin
{
public:
  typedef OBPlugin::PluginIterator Formatpos;
  MAKE_PLUGIN(OBFormat)
  static bool GetNextFormat(Formatpos& itr, const char*& str, OBFormat*& pFormat);
  static FMapType& FormatsMIMEMap()
  {
    static FMapType* fm = NULL;
    if (!fm)
      fm = new FMapType;
    return *fm;
  }
  int Other();
};
class Multi : public OBPlugin, public Other {};
class Trail : public Other, public OBPlugin {};
}
`

const conversionSource = `namespace OpenBabel {
int OBConversion::RegisterFormat(const char* ID, OBFormat* pFormat, const char* MIME)
{
  FormatsMap()[ID] = pFormat;
  return FormatsMap().size();
}

OBFormat* OBConversion::FindFormat(const char* ID)
{
  return static_cast<OBFormat*>(OBPlugin::GetPlugin("formats", ID));
}

OBFormat* OBConversion::FindFormat(const std::string ID)
{
  return FindFormat(ID.c_str());
}

bool OBConversion::GetNextFormat(Formatpos& itr, const char*& str, OBFormat*& pFormat)
{
  return false;
}
}
`

func testManifest() *api.Manifest {
	return &api.Manifest{
		IncludeDir:   "openbabel",
		CxxNamespace: "OpenBabel",
		Modules: []api.Module{
			{Base: "format", HasImpl: true},
			{Base: "obconversion", HasImpl: true},
			{Base: "babelconfig"},
		},
		Categories: []api.Category{
			{Name: "formats", BaseClass: "OBFormat", Header: "format.h", Host: "obconversion.cpp"},
			{Name: "fingerprints", BaseClass: "OBFingerprint", Header: "fingerprint.h", Host: "fingerprint.cpp"},
		},
	}
}

func TestGlobal_StripsPluginMachinery(t *testing.T) {
	e, err := rules.NewEngine(Global(), nil)
	require.NoError(t, err)

	res, err := e.Apply("include/openbabel/format.h", []byte(formatHeader))
	require.NoError(t, err)
	out := string(res.Content)

	assert.Contains(t, out, "// #include <openbabel/plugin.h>")
	assert.Contains(t, out, "#include <openbabel/babelconfig.h>\n")
	assert.Contains(t, out, "class OBCONV OBFormat /* : public OBPlugin */\n{")
	assert.Contains(t, out, "class Multi : /* public OBPlugin, */ public Other {};")
	assert.Contains(t, out, "class Trail : public Other/* , public OBPlugin */ {};")
	assert.Contains(t, out, "  // typedef OBPlugin::PluginIterator Formatpos;")
	assert.Contains(t, out, "  // MAKE_PLUGIN(OBFormat)\n")
	assert.Contains(t, out, "  // static bool GetNextFormat(")
	assert.Contains(t, out, "//     return *fm;\n//   }\n  int Other();")
	assert.NotContains(t, out, "\n  static FMapType")

	for _, name := range []string{"plugin-include", "plugin-macro", "plugin-base-lead", "plugin-base-trail", "plugin-base", "mime-map", "plugin-iter-typedef", "plugin-iter-decl"} {
		assert.Equal(t, 1, res.Hits[name], name)
	}
	assert.Empty(t, e.Unmatched())
}

func TestGlobal_Idempotent(t *testing.T) {
	e, err := rules.NewEngine(Global(), nil)
	require.NoError(t, err)

	once, err := e.Apply("format.h", []byte(formatHeader))
	require.NoError(t, err)
	twice, err := e.Apply("format.h", once.Content)
	require.NoError(t, err)
	assert.Equal(t, string(once.Content), string(twice.Content))
	assert.False(t, twice.Changed)
}

func TestGlobal_LeavesOtherBasesAlone(t *testing.T) {
	e, err := rules.NewEngine(Global(), nil)
	require.NoError(t, err)

	src := "class A : public OBPluginish {};\nclass B : public Base {};\nstd::string s = a ? b : c;\n"
	res, err := e.Apply("a.h", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, src, string(res.Content))
}

func TestTargeted_OnlySelectedFiles(t *testing.T) {
	table := Targeted(testManifest())

	assert.Contains(t, table, "obconversion.cpp")
	assert.Contains(t, table, "format.h")
	assert.NotContains(t, table, "plugin.cpp")
	assert.NotContains(t, table, "fingerprint.h")
	assert.NotContains(t, table, "transform.cpp")
}

func TestTargeted_ConversionReroute(t *testing.T) {
	e, err := rules.NewEngine(Global(), Targeted(testManifest()))
	require.NoError(t, err)

	res, err := e.Apply("src/obconversion.cpp", []byte(conversionSource))
	require.NoError(t, err)
	out := string(res.Content)

	assert.Contains(t, out, "  return OBFormat::FindType(ID);\n")
	assert.NotContains(t, out, "GetPlugin")
	assert.Contains(t, out, "return FindFormat(ID.c_str());")
	assert.Contains(t, out, "  (void)MIME;\n  return 1;\n")
	assert.Contains(t, out, "#if 0 // babelpatch:obconversion.cpp:next-format\nbool OBConversion::GetNextFormat(")
	assert.Equal(t, 1, res.Hits["obconversion.cpp:find-format"])

	again, err := e.Apply("src/obconversion.cpp", res.Content)
	require.NoError(t, err)
	assert.Equal(t, out, string(again.Content))
}

func TestTargeted_HeaderGetsFindType(t *testing.T) {
	e, err := rules.NewEngine(Global(), Targeted(testManifest()))
	require.NoError(t, err)

	res, err := e.Apply("include/openbabel/format.h", []byte(formatHeader))
	require.NoError(t, err)
	out := string(res.Content)

	assert.Contains(t, out, "  static OBFormat* FindType(const char* ID);\n")
	assert.Equal(t, 1, strings.Count(out, "FindType("))
	// members land inside OBFormat, before its closing brace
	assert.Less(t, strings.Index(out, "FindType("), strings.Index(out, "class Multi"))

	again, err := e.Apply("include/openbabel/format.h", res.Content)
	require.NoError(t, err)
	assert.Equal(t, out, string(again.Content))
}
