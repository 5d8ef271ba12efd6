package linter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

type Diagnostic struct {
	Message string
	Line    uint32
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line+1, d.Message)
}

// residual maps names that must not survive patching to the message
// reported for a live (uncommented, not #if 0'd) occurrence.
var residual = map[string]string{
	"OBPlugin":         "live reference to OBPlugin",
	"MAKE_PLUGIN":      "live MAKE_PLUGIN registration",
	"OB_STATIC_PLUGIN": "live OB_STATIC_PLUGIN registration",
	"PluginIterator":   "live use of the plugin iteration API",
}

// Identifiers, types and qualifiers: comments never produce these nodes, so
// anything matched is live code unless it sits in an #if 0 block.
const query = `
	[
		(identifier)
		(type_identifier)
		(namespace_identifier)
	] @name
`

// Lint reports plugin machinery left in patched C++ content.
// Non-C++ files pass through.
func Lint(content []byte, path string) ([]Diagnostic, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".hh", ".hpp", ".cpp", ".cc", ".cxx":
	default:
		return nil, nil
	}

	lang := cpp.GetLanguage()
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}

	q, err := sitter.NewQuery([]byte(query), lang)
	if err != nil {
		return nil, fmt.Errorf("compile lint query: %w", err)
	}
	qc := sitter.NewQueryCursor()
	qc.Exec(q, tree.RootNode())

	var diags []Diagnostic
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			msg, hit := residual[c.Node.Content(content)]
			if !hit || disabled(c.Node, content) {
				continue
			}
			diags = append(diags, Diagnostic{
				Message: msg,
				Line:    c.Node.StartPoint().Row,
			})
		}
	}

	return diags, nil
}

// disabled reports whether n sits inside an #if 0 block.
func disabled(n *sitter.Node, src []byte) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "preproc_if" {
			continue
		}
		if cond := p.ChildByFieldName("condition"); cond != nil && strings.TrimSpace(cond.Content(src)) == "0" {
			return true
		}
	}
	return false
}
