package rules

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/logging"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	global := []Rule{
		MustNew("strip-include", `(?m)^([ \t]*)(#include <openbabel/plugin\.h>)`, "$1// $2"),
		MustNew("strip-macro", `(?m)^([ \t]*)(MAKE_PLUGIN\(\w+\);?)`, "$1// $2"),
	}
	table := Table{
		"format.h": {MustNew("format-only", `OBFormat`, "OBFormat")},
		"absent.h": {MustNew("never-seen", `x`, "y")},
	}
	e, err := NewEngine(global, table)
	require.NoError(t, err)
	return e
}

func TestEligible(t *testing.T) {
	for _, p := range []string{"a.h", "src/b.cpp", "c.CC", "d.hpp", "e.cxx", "f.hh"} {
		assert.True(t, Eligible(p), p)
	}
	for _, p := range []string{"CMakeLists.txt", "data/SMARTS_InteLigand.txt", "x.c", "noext"} {
		assert.False(t, Eligible(p), p)
	}
}

func TestEngine_IneligiblePassthrough(t *testing.T) {
	e := testEngine(t)
	in := []byte("#include <openbabel/plugin.h>\n")
	res, err := e.Apply("notes.txt", in)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, in, res.Content)
	assert.Empty(t, res.Hits)
}

func TestEngine_GlobalThenTargeted(t *testing.T) {
	var order []string
	trace := func(name string) Rule {
		return NewEdit(name, func(src string) (string, int, error) {
			order = append(order, name)
			return src, 0, nil
		})
	}
	e, err := NewEngine(
		[]Rule{trace("g1"), trace("g2")},
		Table{"format.h": {trace("t1"), trace("t2")}},
		trace("x1").In("format.h"),
		trace("g3"),
	)
	require.NoError(t, err)

	_, err = e.Apply("include/openbabel/format.h", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2", "g3", "t1", "t2", "x1"}, order)

	order = nil
	_, err = e.Apply("src/other.cpp", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2", "g3"}, order)
}

func TestEngine_TargetedMatchesExactBasename(t *testing.T) {
	var hits int
	e, err := NewEngine(nil, Table{"format.h": {NewEdit("count", func(src string) (string, int, error) {
		hits++
		return src, 1, nil
	})}})
	require.NoError(t, err)

	_, err = e.Apply("include/openbabel/myformat.h", nil)
	require.NoError(t, err)
	_, err = e.Apply("include/openbabel/format.hpp", nil)
	require.NoError(t, err)
	assert.Zero(t, hits)
}

func TestEngine_ApplyAndHits(t *testing.T) {
	e := testEngine(t)
	src := "#include <openbabel/plugin.h>\nclass OBFormat {\n  MAKE_PLUGIN(OBFormat);\n};\n"
	res, err := e.Apply("include/openbabel/format.h", []byte(src))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "// #include <openbabel/plugin.h>\nclass OBFormat {\n  // MAKE_PLUGIN(OBFormat);\n};\n", string(res.Content))
	assert.Equal(t, map[string]int{"strip-include": 1, "strip-macro": 1, "format-only": 2}, res.Hits)
}

func TestEngine_DeterministicAndStable(t *testing.T) {
	e := testEngine(t)
	src := []byte("#include <openbabel/plugin.h>\n  MAKE_PLUGIN(OBOp)\n")
	first, err := e.Apply("op.h", src)
	require.NoError(t, err)
	second, err := e.Apply("op.h", src)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)

	again, err := e.Apply("op.h", first.Content)
	require.NoError(t, err)
	assert.Equal(t, first.Content, again.Content)
	assert.False(t, again.Changed)
}

func TestEngine_Unmatched(t *testing.T) {
	e := testEngine(t)
	_, err := e.Apply("plain.cpp", []byte("#include <openbabel/plugin.h>\n"))
	require.NoError(t, err)

	un := e.Unmatched()
	require.Len(t, un, 3)
	assert.Equal(t, "strip-macro", un[0].Rule)
	assert.False(t, un[0].Absent)
	assert.Equal(t, "never-seen", un[1].Rule)
	assert.True(t, un[1].Absent)
	assert.Equal(t, "format-only", un[2].Rule)
	assert.Equal(t, 1, e.MatchedCount())
}

func TestEngine_DuplicateNames(t *testing.T) {
	_, err := NewEngine([]Rule{MustNew("a", `x`, "y")}, Table{"f.h": {MustNew("a", `x`, "y")}})
	assert.Error(t, err)
}

func TestEngine_EditErrorNamesFile(t *testing.T) {
	e, err := NewEngine([]Rule{InsertInClass("broken", "X", "y;")}, nil)
	require.NoError(t, err)
	_, err = e.Apply("x.h", []byte("class X { unbalanced"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.h")
}

func TestEnforce(t *testing.T) {
	e := testEngine(t)
	_, err := e.Apply("a.cpp", []byte("nothing here"))
	require.NoError(t, err)

	assert.NoError(t, e.Enforce(NoMatchIgnore, nil))

	diag := logging.NewDiagnostics(zerolog.Nop())
	assert.NoError(t, e.Enforce(NoMatchWarn, diag))
	assert.Len(t, diag.Items(), 4)

	err = e.Enforce(NoMatchFail, nil)
	require.Error(t, err)
	assert.True(t, perr.HasCode(err, perr.ErrNoMatch))
}

func TestParseNoMatchPolicy(t *testing.T) {
	p, err := ParseNoMatchPolicy("FAIL")
	require.NoError(t, err)
	assert.Equal(t, NoMatchFail, p)

	p, err = ParseNoMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, NoMatchWarn, p)

	_, err = ParseNoMatchPolicy("maybe")
	assert.True(t, perr.HasCode(err, perr.ErrConfig))
}
