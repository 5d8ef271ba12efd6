package writeback

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	perr "github.com/agentic-research/babelpatch/internal/errors"
)

// ValidationError locates one syntax error.
type ValidationError struct {
	FilePath string
	Line     uint32 // 0-indexed
	Column   uint32 // 0-indexed
	Message  string
	// Text is the trimmed source line holding the error.
	Text string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line+1, e.Column+1, e.Message)
}

// ASTErrors returns every ERROR or MISSING node of a C++ file in source
// order. Other files, and files that parse cleanly, yield nil.
func ASTErrors(content []byte, filePath string) []ValidationError {
	root, err := parse(content, filePath)
	if err != nil || root == nil || !root.HasError() {
		return nil
	}

	lines := bytes.Split(content, []byte("\n"))
	var errs []ValidationError
	collectErrors(root, filePath, lines, &errs)
	return errs
}

// Regressions compares the parse of a file before and after patching.
// Upstream C++ heavy on export macros rarely parses cleanly, so only new
// errors count. Errors are matched on the text of their line, which patching
// may move but leaves unchanged; the first error of after with no
// counterpart in before is reported.
func Regressions(before, after []byte, filePath string) error {
	was := ASTErrors(before, filePath)
	now := ASTErrors(after, filePath)
	if len(now) <= len(was) {
		return nil
	}

	remaining := make(map[string]int, len(was))
	for _, e := range was {
		remaining[e.Text]++
	}
	first := now[len(now)-1]
	for _, e := range now {
		if remaining[e.Text] > 0 {
			remaining[e.Text]--
			continue
		}
		first = e
		break
	}
	return perr.Wrapf(&first, perr.ErrValidation,
		"patching added %d syntax error(s) to %s", len(now)-len(was), filePath)
}

func parse(content []byte, filePath string) (*sitter.Node, error) {
	lang := languageForPath(filePath)
	if lang == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter returned nil root for %s", filePath)
	}
	return root, nil
}

// collectErrors gathers all ERROR/MISSING nodes in the tree.
func collectErrors(node *sitter.Node, filePath string, lines [][]byte, errs *[]ValidationError) {
	if node.IsError() || node.IsMissing() {
		row := node.StartPoint().Row
		var text string
		if int(row) < len(lines) {
			text = string(bytes.TrimSpace(lines[row]))
		}
		*errs = append(*errs, ValidationError{
			FilePath: filePath,
			Line:     row,
			Column:   node.StartPoint().Column,
			Message:  "syntax error in AST",
			Text:     text,
		})
		return // don't recurse into error children
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			collectErrors(child, filePath, lines, errs)
		}
	}
}

// languageForPath maps C++ sources and headers to the tree-sitter grammar.
func languageForPath(filePath string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".h", ".hh", ".hpp", ".cpp", ".cc", ".cxx":
		return cpp.GetLanguage()
	default:
		return nil
	}
}
