package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Structural edits. Each one is idempotent: when the target already has the
// desired shape the edit leaves the text alone but still reports a hit, so
// a second pass over patched output is a no-op rather than a "no match".

const markerPrefix = "babelpatch:"

// InsertInClass inserts text just before the closing brace of class.
func InsertInClass(name, class, text string) Rule {
	anchor := regexp.MustCompile(`\b(?:class|struct)\s+(?:\w+\s+)*` + regexp.QuoteMeta(class) + `\b[^;{]*\{`)
	return NewEdit(name, func(src string) (string, int, error) {
		loc := anchor.FindStringIndex(src)
		if loc == nil {
			return src, 0, nil
		}
		open := loc[1] - 1
		end, err := MatchBrace(src, open)
		if err != nil {
			return src, 0, fmt.Errorf("class %s: %w", class, err)
		}
		if strings.Contains(src[open:end], strings.TrimSpace(text)) {
			return src, 1, nil
		}
		at := end
		if ls := lineStart(src, end); strings.TrimSpace(src[ls:end]) == "" {
			at = ls
		}
		return src[:at] + ensureNewline(text) + src[at:], 1, nil
	})
}

// ReplaceBody swaps the body of every function definition whose signature
// matches anchor for body. The signature is kept for link compatibility.
// Declarations (a ';' before any '{') are skipped.
func ReplaceBody(name, anchor, body string) Rule {
	re := regexp.MustCompile(anchor)
	inner := "\n" + indent(body, "  ") + "\n"
	return NewEdit(name, func(src string) (string, int, error) {
		locs := re.FindAllStringIndex(src, -1)
		hits := 0
		for i := len(locs) - 1; i >= 0; i-- {
			open, ok := definitionBrace(src, locs[i][1])
			if !ok {
				continue
			}
			end, err := MatchBrace(src, open)
			if err != nil {
				return src, 0, err
			}
			hits++
			if src[open+1:end] == inner {
				continue
			}
			src = src[:open+1] + inner + src[end:]
		}
		return src, hits, nil
	})
}

// DisableFunction wraps every definition matching anchor in an #if 0 block,
// balanced-brace bounded rather than line-count bounded.
func DisableFunction(name, anchor string) Rule {
	re := regexp.MustCompile(anchor)
	begin := "#if 0 // " + markerPrefix + name + "\n"
	finish := "#endif // " + markerPrefix + name + "\n"
	return NewEdit(name, func(src string) (string, int, error) {
		locs := re.FindAllStringIndex(src, -1)
		hits := 0
		for i := len(locs) - 1; i >= 0; i-- {
			open, ok := definitionBrace(src, locs[i][1])
			if !ok {
				continue
			}
			end, err := MatchBrace(src, open)
			if err != nil {
				return src, 0, err
			}
			hits++
			start := lineStart(src, locs[i][0])
			if strings.HasSuffix(src[:start], begin) {
				continue
			}
			stop := end + 1
			if stop < len(src) && src[stop] == '\n' {
				stop++
			}
			src = src[:start] + begin + ensureNewline(src[start:stop]) + finish + src[stop:]
		}
		return src, hits, nil
	})
}

// CommentLines prefixes the line matched by anchor and the following n lines
// with "// ". Only definitions count: a match followed by ';' before any '{'
// is a declaration and is left alone. The fixed line count assumes a stable
// upstream layout; anchor must be line-anchored so commented output no
// longer matches.
func CommentLines(name, anchor string, n int) Rule {
	re := regexp.MustCompile(anchor)
	return NewEdit(name, func(src string) (string, int, error) {
		locs := re.FindAllStringIndex(src, -1)
		hits := 0
		for i := len(locs) - 1; i >= 0; i-- {
			if _, ok := definitionBrace(src, locs[i][1]); !ok {
				continue
			}
			hits++
			start := lineStart(src, locs[i][0])
			var b strings.Builder
			b.WriteString(src[:start])
			pos := start
			for line := 0; line <= n && pos < len(src); line++ {
				end := skipLine(src, pos)
				if end < len(src) {
					end++
				}
				b.WriteString("// ")
				b.WriteString(src[pos:end])
				pos = end
			}
			b.WriteString(src[pos:])
			src = b.String()
		}
		return src, hits, nil
	})
}

// InsertAfter inserts text right after the first match of anchor.
func InsertAfter(name, anchor, text string) Rule {
	re := regexp.MustCompile(anchor)
	return NewEdit(name, func(src string) (string, int, error) {
		if strings.Contains(src, strings.TrimSpace(text)) {
			return src, 1, nil
		}
		loc := re.FindStringIndex(src)
		if loc == nil {
			return src, 0, nil
		}
		at := loc[1]
		if at < len(src) && src[at] == '\n' {
			return src[:at+1] + ensureNewline(text) + src[at+1:], 1, nil
		}
		return src[:at] + "\n" + ensureNewline(text) + src[at:], 1, nil
	})
}

// AppendBlock appends text at the end of the file.
func AppendBlock(name, text string) Rule {
	return NewEdit(name, func(src string) (string, int, error) {
		if strings.Contains(src, strings.TrimSpace(text)) {
			return src, 1, nil
		}
		return ensureNewline(src) + "\n" + ensureNewline(text), 1, nil
	})
}

// definitionBrace finds the body brace after a signature ending at from.
func definitionBrace(src string, from int) (int, bool) {
	open := NextCodeByte(src, from, '{')
	if open < 0 {
		return -1, false
	}
	if semi := NextCodeByte(src, from, ';'); semi >= 0 && semi < open {
		return -1, false
	}
	return open, true
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
