// Package router generates the static FindType dispatch that replaces the
// runtime plugin registry, and the rules that inject it into the tree.
package router

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/rules"
)

const helper = `#ifndef BABELPATCH_ID_EQUAL
#define BABELPATCH_ID_EQUAL
static bool babel_id_equal(const char* a, const char* b) {
  while (*a && *a == *b) {
    ++a;
    ++b;
  }
  return *a == *b;
}
#endif
`

// Router is the generated code for one category.
type Router struct {
	Category  api.Category
	Namespace string
	Routes    []api.Route
	// ForwardDecls declares one factory per route.
	ForwardDecls string
	// Dispatch defines <Base>::FindType.
	Dispatch string
	// Factories maps a source basename to the block appended to it.
	Factories map[string]string
}

// Generate builds the router for one category. Routes are tested in order,
// so the first matching ID wins.
func Generate(ns string, spec api.RouterSpec) Router {
	base := spec.Category.BaseClass
	r := Router{
		Category:  spec.Category,
		Namespace: ns,
		Routes:    spec.Routes,
		Factories: make(map[string]string),
	}

	var decls strings.Builder
	declared := make(map[string]bool)
	for _, rt := range spec.Routes {
		if declared[rt.Factory] {
			continue
		}
		declared[rt.Factory] = true
		fmt.Fprintf(&decls, "%s* %s();\n", base, rt.Factory)
	}
	r.ForwardDecls = decls.String()

	var d strings.Builder
	fmt.Fprintf(&d, "%s* %s(const char* ID) {\n", base, FuncName(base))
	d.WriteString("  if (!ID) {\n    return nullptr;\n  }\n")
	for i, rt := range spec.Routes {
		if i == 0 {
			d.WriteString("  if")
		} else {
			d.WriteString(" else if")
		}
		fmt.Fprintf(&d, " (babel_id_equal(ID, %s)) {\n    return %s();\n  }", cString(rt.ID), rt.Factory)
	}
	if len(spec.Routes) > 0 {
		d.WriteString("\n")
	}
	d.WriteString("  return nullptr;\n}\n")
	r.Dispatch = d.String()

	bySource := make(map[string][]api.Route)
	for _, rt := range spec.Routes {
		bySource[rt.Source] = append(bySource[rt.Source], rt)
	}
	for src, routes := range bySource {
		var b strings.Builder
		fmt.Fprintf(&b, "// %s %s factories\n", marker, spec.Category.Name)
		fmt.Fprintf(&b, "namespace %s {\n", ns)
		for _, rt := range routes {
			fmt.Fprintf(&b, "%s* %s() {\n  return new %s(%s);\n}\n", base, rt.Factory, rt.Class, rt.CtorArgs)
		}
		fmt.Fprintf(&b, "} // namespace %s\n", ns)
		r.Factories[src] = b.String()
	}
	return r
}

const marker = "babelpatch:router"

// FuncName is the qualified name of the dispatch function for base.
func FuncName(base string) string {
	return base + "::FindType"
}

// Injection is the text inserted into the host translation unit.
func (r Router) Injection() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s %s begin\n", marker, r.Category.Name)
	b.WriteString(helper)
	b.WriteString("\n")
	b.WriteString(r.ForwardDecls)
	b.WriteString("\n")
	b.WriteString(r.Dispatch)
	fmt.Fprintf(&b, "// %s %s end\n", marker, r.Category.Name)
	return b.String()
}

// Source renders the router and all its factories as one translation unit.
func (r Router) Source() string {
	var b strings.Builder
	fmt.Fprintf(&b, "namespace %s {\n", r.Namespace)
	b.WriteString(r.Injection())
	fmt.Fprintf(&b, "} // namespace %s\n", r.Namespace)
	for _, src := range slices.Sorted(maps.Keys(r.Factories)) {
		b.WriteString(r.Factories[src])
	}
	return b.String()
}

// Rules returns the injection rules for r: the router lands once, right after
// the first opening of the namespace in the host file, and each source file
// gets its factories appended.
func (r Router) Rules() []rules.Rule {
	anchor := `\bnamespace\s+` + regexp.QuoteMeta(r.Namespace) + `\s*\{`
	out := []rules.Rule{
		rules.InsertAfter("router:"+r.Category.Name, anchor, r.Injection()).In(r.Category.Host).Once(),
	}
	for _, src := range slices.Sorted(maps.Keys(r.Factories)) {
		out = append(out,
			rules.AppendBlock(fmt.Sprintf("factories:%s:%s", r.Category.Name, src), r.Factories[src]).In(src))
	}
	return out
}

// GenerateAll builds routers for every spec.
func GenerateAll(ns string, specs []api.RouterSpec) []Router {
	out := make([]Router, 0, len(specs))
	for _, s := range specs {
		out = append(out, Generate(ns, s))
	}
	return out
}

// InjectionRules flattens the rules of every router, in order.
func InjectionRules(routers []Router) []rules.Rule {
	var out []rules.Rule
	for _, r := range routers {
		out = append(out, r.Rules()...)
	}
	return out
}

// cString renders s as a C string literal. Bytes outside printable ASCII
// become three-digit octal escapes; an octal escape ends after three digits
// whatever follows it.
func cString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
