// Package patches holds the rule tables that strip OpenBabel's runtime
// plugin machinery. Global rules run on every eligible file; the targeted
// table adds per-file structural edits.
package patches

import (
	"fmt"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/manifest"
	"github.com/agentic-research/babelpatch/internal/rules"
)

// MIMEMapBodyLines is the number of lines following the FormatsMIMEMap
// signature that make up its body in the pinned upstream release.
const MIMEMapBodyLines = 6

// Global returns the rules applied to every eligible file, in order.
// Header removal runs first: the base-class rules assume plugin.h is gone.
func Global() []rules.Rule {
	return []rules.Rule{
		rules.MustNew("plugin-include",
			`(?m)^([ \t]*)(#include\s*[<"]openbabel/plugin\.h[>"])`,
			"$1// $2 (static build)"),
		rules.MustNew("plugin-macro",
			`(?m)^([ \t]*)((?:MAKE_PLUGIN|OB_STATIC_PLUGIN)\([^)\n]*\)[ \t]*;?)`,
			"$1// $2"),
		rules.MustNew("plugin-base-lead",
			`:(\s*)public\s+OBPlugin\s*,\s*`,
			":$1/* public OBPlugin, */ "),
		rules.MustNew("plugin-base-trail",
			`(\w)(\s*),(\s*)public\s+OBPlugin\b`,
			"$1$2/* ,${3}public OBPlugin */"),
		rules.MustNew("plugin-base",
			`(\w)(\s*):(\s*)public\s+OBPlugin\b`,
			"$1$2/* :${3}public OBPlugin */"),
		rules.CommentLines("mime-map",
			`(?m)^[ \t]*static\s+FMapType\s*&\s*FormatsMIMEMap\s*\(\s*\)`,
			MIMEMapBodyLines),
		rules.MustNew("plugin-iter-typedef",
			`(?m)^([ \t]*)(typedef\s+OBPlugin::PluginIterator\s+\w+\s*;)`,
			"$1// $2"),
		rules.MustNew("plugin-iter-decl",
			`(?m)^([ \t]*)(static\s+(?:int|bool)\s+GetNextFormat\s*\([^;{]*\)\s*;)`,
			"$1// $2"),
	}
}

// fixed holds the hand-maintained per-file rules for the pinned upstream.
// Rule names are prefixed with the file they belong to.
func fixed() rules.Table {
	return rules.Table{
		"plugin.cpp": {
			rules.ReplaceBody("plugin.cpp:load-all", `\bOBPlugin::LoadAllPlugins\s*\(`, "return;"),
		},
		"obconversion.cpp": {
			rules.ReplaceBody("obconversion.cpp:register-format",
				`\bOBConversion::RegisterFormat\s*\(`,
				"(void)ID;\n(void)pFormat;\n(void)MIME;\nreturn 1;"),
			rules.ReplaceBody("obconversion.cpp:find-format",
				`\bOBConversion::FindFormat\s*\(\s*const\s+char\s*\*`,
				"return OBFormat::FindType(ID);"),
			rules.ReplaceBody("obconversion.cpp:format-from-mime",
				`\bOBConversion::FormatFromMIME\s*\(`,
				"(void)MIME;\nreturn nullptr;"),
			rules.DisableFunction("obconversion.cpp:next-format", `\bOBConversion::GetNextFormat\s*\(`),
		},
		"fingerprint.h": {
			rules.MustNew("fingerprint.h:next-fprt-decl",
				`(?m)^([ \t]*)(static\s+bool\s+GetNextFPrt\s*\([^;{]*\)\s*;)`,
				"$1// $2"),
		},
		"fingerprint.cpp": {
			rules.ReplaceBody("fingerprint.cpp:find-fingerprint",
				`\bOBFingerprint::FindFingerprint\s*\(`,
				"return FindType(ID);"),
			rules.DisableFunction("fingerprint.cpp:next-fprt", `\bOBFingerprint::GetNextFPrt\s*\(`),
		},
		"transform.cpp": {
			rules.ReplaceBody("transform.cpp:do-transformations",
				`\bOBMol::DoTransformations\s*\(`,
				"(void)pOptions;\n(void)pConv;\nreturn this;"),
			rules.ReplaceBody("transform.cpp:class-description",
				`\bOBMol::ClassDescription\s*\(`,
				`return "";`),
		},
	}
}

// Targeted builds the per-file table for the files m actually selects: the
// fixed upstream rules plus a FindType declaration in every category header.
func Targeted(m *api.Manifest) rules.Table {
	present := manifest.Basenames(m)
	table := rules.Table{}
	for base, rs := range fixed() {
		if present[base] {
			table[base] = append(table[base], rs...)
		}
	}
	for _, c := range m.Categories {
		if !present[c.Header] {
			continue
		}
		table[c.Header] = append(table[c.Header], rules.InsertInClass(
			fmt.Sprintf("%s:find-type", c.Header),
			c.BaseClass,
			ClassMembers(c.BaseClass),
		))
	}
	return table
}

// ClassMembers returns the members a plugin base class gets in place of
// OBPlugin. FindType is defined by the generated router.
func ClassMembers(base string) string {
	return fmt.Sprintf(`public:
  %[1]s(const char* ID = nullptr, bool IsDefault = false) : _static_id(ID) { (void)IsDefault; }
  const char* GetID() const { return _static_id; }
  static %[1]s* FindType(const char* ID);
protected:
  const char* _static_id;
`, base)
}
