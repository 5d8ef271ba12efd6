// Package rules applies ordered text transformations to C++ sources.
//
// A Rule is either a regex substitute-all (Pattern + Replacement) or a
// structural edit (Edit) located with an anchor and a balanced-brace scan.
// Rules are pure functions of the text; a rule that matches nothing is a
// no-op, and the Engine decides afterwards whether that is worth reporting.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
)

// Scope restricts a rule to files with an exact basename. The zero Scope is global.
type Scope struct {
	File string
}

// Global is the scope of rules applied to every eligible file.
func Global() Scope { return Scope{} }

// FileName scopes a rule to one basename.
func FileName(base string) Scope { return Scope{File: base} }

func (s Scope) IsGlobal() bool { return s.File == "" }

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "file:" + s.File
}

// EditFunc rewrites src and reports how many sites it touched (or found
// already in the desired shape).
type EditFunc func(src string) (string, int, error)

type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	// Limit caps substitutions per file; 0 means all.
	Limit int
	Edit  EditFunc
	Scope Scope
}

// New compiles a regex rule and checks that the replacement template only
// references capture groups the pattern defines.
func New(name, pattern, replacement string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: compile: %w", name, err)
	}
	if err := checkTemplate(re, replacement); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	return Rule{Name: name, Pattern: re, Replacement: replacement}, nil
}

// MustNew is New for statically known rule tables.
func MustNew(name, pattern, replacement string) Rule {
	r, err := New(name, pattern, replacement)
	if err != nil {
		panic(err)
	}
	return r
}

// NewEdit wraps a structural edit as a rule.
func NewEdit(name string, fn EditFunc) Rule {
	return Rule{Name: name, Edit: fn}
}

// In returns a copy of r scoped to the given basename.
func (r Rule) In(base string) Rule {
	r.Scope = FileName(base)
	return r
}

// Once returns a copy of r limited to its first match.
func (r Rule) Once() Rule {
	r.Limit = 1
	return r
}

// Apply runs the rule over src.
func (r Rule) Apply(src string) (string, int, error) {
	if r.Edit != nil {
		out, n, err := r.Edit(src)
		if err != nil {
			return src, 0, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		return out, n, nil
	}
	if r.Pattern == nil {
		return src, 0, fmt.Errorf("rule %s: neither pattern nor edit set", r.Name)
	}

	limit := -1
	if r.Limit > 0 {
		limit = r.Limit
	}
	matches := r.Pattern.FindAllStringSubmatchIndex(src, limit)
	if len(matches) == 0 {
		return src, 0, nil
	}

	out := make([]byte, 0, len(src))
	last := 0
	for _, m := range matches {
		out = append(out, src[last:m[0]]...)
		out = r.Pattern.ExpandString(out, r.Replacement, src, m)
		last = m[1]
	}
	out = append(out, src[last:]...)
	return string(out), len(matches), nil
}

// checkTemplate walks a regexp.Expand template the same way Expand does and
// rejects references to groups that do not exist.
func checkTemplate(re *regexp.Regexp, tmpl string) error {
	names := make(map[string]bool)
	for _, n := range re.SubexpNames() {
		if n != "" {
			names[n] = true
		}
	}

	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '$' {
			continue
		}
		i++
		if i >= len(tmpl) {
			return fmt.Errorf("template ends with bare $")
		}
		if tmpl[i] == '$' {
			continue
		}

		var name string
		if tmpl[i] == '{' {
			end := i + 1
			for end < len(tmpl) && tmpl[end] != '}' {
				end++
			}
			if end >= len(tmpl) {
				return fmt.Errorf("unterminated ${ in template")
			}
			name = tmpl[i+1 : end]
			i = end
		} else {
			end := i
			for end < len(tmpl) && isNameByte(tmpl[end]) {
				end++
			}
			if end == i {
				return fmt.Errorf("bare $ at offset %d", i-1)
			}
			name = tmpl[i:end]
			i = end - 1
		}

		if idx, err := strconv.Atoi(name); err == nil {
			if idx > re.NumSubexp() {
				return fmt.Errorf("template references group $%d, pattern has %d", idx, re.NumSubexp())
			}
			continue
		}
		if !names[name] {
			return fmt.Errorf("template references unknown group %q", name)
		}
	}
	return nil
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
