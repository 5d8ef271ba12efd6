package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/agentic-research/babelpatch/api"
	perr "github.com/agentic-research/babelpatch/internal/errors"
)

// Branch is one arm of a parsed dispatch chain.
type Branch struct {
	ID      string
	Factory string
	// Class is what Factory constructs, empty when its definition was not
	// part of the parsed source.
	Class string
}

// Chain is a dispatch function recovered from C++ source.
type Chain struct {
	Function string
	// NullGuard is set when a null ID returns nullptr before any comparison.
	NullGuard bool
	Branches  []Branch
	// Fallback is set when the function ends with return nullptr.
	Fallback bool
}

var nullReturn = regexp.MustCompile(`\breturn\s+(?:nullptr|NULL|0)\s*;`)

// Parse finds the definition of fn in src and recovers its if/else-if chain.
// Factory definitions anywhere in src are used to resolve branch classes.
func Parse(src []byte, fn string) (*Chain, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	var body *sitter.Node
	factories := make(map[string]string)
	visit(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		name := functionName(n, src)
		if name == fn && body == nil {
			body = n.ChildByFieldName("body")
		} else if cls := constructed(n, src); cls != "" {
			factories[name] = cls
		}
		return false
	})
	if body == nil {
		return nil, perr.Newf(perr.ErrValidation, "function %s not found", fn)
	}

	c := &Chain{Function: fn}
	count := int(body.NamedChildCount())
	for i := 0; i < count; i++ {
		stmt := body.NamedChild(i)
		switch stmt.Type() {
		case "if_statement":
			c.walkIf(stmt, src)
		case "return_statement":
			if i == count-1 && nullReturn.MatchString(stmt.Content(src)) {
				c.Fallback = true
			}
		}
	}
	for i := range c.Branches {
		c.Branches[i].Class = factories[c.Branches[i].Factory]
	}
	return c, nil
}

func (c *Chain) walkIf(n *sitter.Node, src []byte) {
	cond := n.ChildByFieldName("condition")
	cons := n.ChildByFieldName("consequence")
	if cond == nil || cons == nil {
		return
	}

	lit := find(cond, "string_literal")
	if lit == nil {
		if len(c.Branches) == 0 && strings.Contains(cond.Content(src), "!") &&
			nullReturn.MatchString(cons.Content(src)) {
			c.NullGuard = true
		}
	} else {
		b := Branch{ID: unquote(lit.Content(src))}
		if call := find(cons, "call_expression"); call != nil {
			if f := call.ChildByFieldName("function"); f != nil {
				b.Factory = f.Content(src)
			}
		}
		c.Branches = append(c.Branches, b)
	}

	alt := n.ChildByFieldName("alternative")
	if alt != nil && alt.Type() == "else_clause" && alt.NamedChildCount() > 0 {
		alt = alt.NamedChild(0)
	}
	if alt != nil && alt.Type() == "if_statement" {
		c.walkIf(alt, src)
	}
}

// Resolve evaluates the chain for id the way the generated code does: the
// first equal ID wins and anything else falls through to nullptr.
func (c *Chain) Resolve(id string) (Branch, bool) {
	for _, b := range c.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

// Trace resolves id against the dispatch function fn defined in src. An
// empty Class with a nil error means the id yields nullptr.
func Trace(src []byte, fn, id string) (Branch, error) {
	c, err := Parse(src, fn)
	if err != nil {
		return Branch{}, err
	}
	b, _ := c.Resolve(id)
	return b, nil
}

// Check verifies that the dispatch for base in src has a null guard, exactly
// one branch per route in registry order resolving to the route's class, and
// a nullptr fallback.
func Check(src []byte, base string, routes []api.Route) error {
	c, err := Parse(src, FuncName(base))
	if err != nil {
		return err
	}
	fail := func(format string, args ...any) error {
		return perr.Newf(perr.ErrValidation, "%s: "+format, append([]any{c.Function}, args...)...)
	}

	if !c.NullGuard {
		return fail("no null guard")
	}
	if !c.Fallback {
		return fail("no nullptr fallback")
	}
	if len(c.Branches) != len(routes) {
		return fail("%d branches for %d routes", len(c.Branches), len(routes))
	}
	known := make(map[string]bool, len(routes))
	for i, rt := range routes {
		b := c.Branches[i]
		if b.ID != rt.ID {
			return fail("branch %d tests %q, want %q", i, b.ID, rt.ID)
		}
		if known[rt.ID] {
			return fail("duplicate branch for %q", rt.ID)
		}
		known[rt.ID] = true
		got, _ := c.Resolve(rt.ID)
		if got.Class != rt.Class {
			return fail("%q resolves to %q, want %q", rt.ID, got.Class, rt.Class)
		}
	}

	unknown := "babelpatch-unknown"
	for known[unknown] {
		unknown += "_"
	}
	if b, ok := c.Resolve(unknown); ok {
		return fail("unknown id resolves to %q", b.Class)
	}
	return nil
}

// Check runs the completeness self-check on the generated source.
func (r Router) Check() error {
	return Check([]byte(r.Source()), r.Category.BaseClass, r.Routes)
}

// visit walks n depth-first; fn returns false to skip a node's children.
func visit(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		visit(n.NamedChild(i), fn)
	}
}

func find(n *sitter.Node, typ string) *sitter.Node {
	var found *sitter.Node
	visit(n, func(c *sitter.Node) bool {
		if found != nil {
			return false
		}
		if c.Type() == typ {
			found = c
			return false
		}
		return true
	})
	return found
}

// functionName returns the declarator name of a function definition with
// pointer and reference declarators peeled off.
func functionName(def *sitter.Node, src []byte) string {
	d := def.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "pointer_declarator", "reference_declarator":
			next := d.ChildByFieldName("declarator")
			if next == nil && d.NamedChildCount() > 0 {
				next = d.NamedChild(int(d.NamedChildCount()) - 1)
			}
			d = next
		case "function_declarator":
			d = d.ChildByFieldName("declarator")
		default:
			return strings.Join(strings.Fields(d.Content(src)), "")
		}
	}
	return ""
}

// constructed returns the type of the first new-expression in a function body.
func constructed(def *sitter.Node, src []byte) string {
	n := find(def.ChildByFieldName("body"), "new_expression")
	if n == nil {
		return ""
	}
	if t := n.ChildByFieldName("type"); t != nil {
		return t.Content(src)
	}
	return ""
}

func unquote(lit string) string {
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	return strings.Trim(lit, `"`)
}
