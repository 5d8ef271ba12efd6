package router

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/writeback"
)

// GoBindings renders a Go file enumerating the closed ID set of every
// category, for wrapper code that wants to reject unknown IDs before
// crossing into C++.
func GoBindings(pkg string, specs []api.RouterSpec) ([]byte, error) {
	var b strings.Builder
	b.WriteString("// Code generated by babelpatch. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n", pkg)

	for _, s := range specs {
		name := GoName(s.Category.BaseClass)
		ids := make([]string, len(s.Routes))
		for i, rt := range s.Routes {
			ids[i] = strconv.Quote(rt.ID)
		}

		fmt.Fprintf(&b, "\n// %sIDs lists every id %s resolves, in dispatch order.\n", name, FuncName(s.Category.BaseClass))
		fmt.Fprintf(&b, "var %sIDs = []string{%s}\n", name, strings.Join(ids, ", "))

		fmt.Fprintf(&b, "\n// Is%s reports whether %s resolves id.\n", name, FuncName(s.Category.BaseClass))
		fmt.Fprintf(&b, "func Is%s(id string) bool {\n", name)
		if len(ids) > 0 {
			fmt.Fprintf(&b, "switch id {\ncase %s:\nreturn true\n}\n", strings.Join(ids, ", "))
		}
		b.WriteString("return false\n}\n")
	}

	out, err := writeback.FormatGo([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("format bindings: %w", err)
	}
	return out, nil
}

// GoName derives an exported Go identifier from a C++ base class,
// dropping the OB prefix: OBFormat becomes Format.
func GoName(base string) string {
	name := base
	if len(name) > 2 && strings.HasPrefix(name, "OB") && unicode.IsUpper(rune(name[2])) {
		name = name[2:]
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
