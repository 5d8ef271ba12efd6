package rules

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// Eligible reports whether the rule engine rewrites files with this path.
func Eligible(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".h", ".hh", ".hpp", ".cpp", ".cc", ".cxx":
		return true
	default:
		return false
	}
}

// Table maps a basename to its targeted rules, in application order.
type Table map[string][]Rule

// Result is the outcome of running the engine over one file.
type Result struct {
	Content []byte
	Changed bool
	// Hits counts matches per rule name for rules that matched at least once.
	Hits map[string]int
}

// Engine applies global rules, then targeted rules for the file's exact
// basename, each list in declaration order. It also remembers which rules
// ever matched across the files it has seen.
type Engine struct {
	rules    []Rule
	global   []uint32
	targeted map[string][]uint32

	applicable *roaring.Bitmap
	matched    *roaring.Bitmap
}

// NewEngine builds an engine from the global list and the targeted table.
// extra rules are routed by their own Scope (global or file) and run after
// the table's rules for the same file; the router uses this.
func NewEngine(global []Rule, table Table, extra ...Rule) (*Engine, error) {
	e := &Engine{
		targeted:   make(map[string][]uint32),
		applicable: roaring.New(),
		matched:    roaring.New(),
	}
	seen := make(map[string]bool)
	add := func(r Rule) (uint32, error) {
		if r.Name == "" {
			return 0, fmt.Errorf("rule without name")
		}
		if seen[r.Name] {
			return 0, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		if r.Pattern == nil && r.Edit == nil {
			return 0, fmt.Errorf("rule %s: neither pattern nor edit set", r.Name)
		}
		seen[r.Name] = true
		e.rules = append(e.rules, r)
		return uint32(len(e.rules) - 1), nil
	}

	for _, r := range global {
		r.Scope = Global()
		idx, err := add(r)
		if err != nil {
			return nil, err
		}
		e.global = append(e.global, idx)
	}
	for _, base := range sortedKeys(table) {
		for _, r := range table[base] {
			r.Scope = FileName(base)
			idx, err := add(r)
			if err != nil {
				return nil, err
			}
			e.targeted[base] = append(e.targeted[base], idx)
		}
	}
	for _, r := range extra {
		idx, err := add(r)
		if err != nil {
			return nil, err
		}
		if r.Scope.IsGlobal() {
			e.global = append(e.global, idx)
		} else {
			e.targeted[r.Scope.File] = append(e.targeted[r.Scope.File], idx)
		}
	}
	return e, nil
}

// Rules returns every registered rule in registration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Apply rewrites content for the file at p. Ineligible files are returned
// untouched with no hits.
func (e *Engine) Apply(p string, content []byte) (Result, error) {
	res := Result{Content: content, Hits: make(map[string]int)}
	if !Eligible(p) {
		return res, nil
	}

	order := append([]uint32{}, e.global...)
	order = append(order, e.targeted[path.Base(p)]...)

	text := string(content)
	for _, idx := range order {
		r := e.rules[idx]
		e.applicable.Add(idx)
		out, n, err := r.Apply(text)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", p, err)
		}
		if n > 0 {
			e.matched.Add(idx)
			res.Hits[r.Name] += n
		}
		text = out
	}

	if text != string(content) {
		res.Content = []byte(text)
		res.Changed = true
	}
	return res, nil
}

// Unmatch describes a rule that never matched during a run.
type Unmatch struct {
	Rule  string
	Scope Scope
	// Absent is true when no file the rule applies to was ever seen.
	Absent bool
}

// Unmatched lists rules with zero matches across every Apply call so far,
// in registration order.
func (e *Engine) Unmatched() []Unmatch {
	all := roaring.New()
	all.AddRange(0, uint64(len(e.rules)))
	all.AndNot(e.matched)

	var out []Unmatch
	it := all.Iterator()
	for it.HasNext() {
		idx := it.Next()
		r := e.rules[idx]
		out = append(out, Unmatch{Rule: r.Name, Scope: r.Scope, Absent: !e.applicable.Contains(idx)})
	}
	return out
}

// MatchedCount returns how many distinct rules matched at least once.
func (e *Engine) MatchedCount() int {
	return int(e.matched.GetCardinality())
}

func sortedKeys(t Table) []string {
	return slices.Sorted(maps.Keys(t))
}
