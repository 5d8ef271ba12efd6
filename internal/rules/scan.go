package rules

import "fmt"

// MatchBrace returns the index of the '}' closing the '{' at open. Braces
// inside comments, string literals and character literals are ignored.
func MatchBrace(src string, open int) (int, error) {
	if open < 0 || open >= len(src) || src[open] != '{' {
		return -1, fmt.Errorf("no opening brace at offset %d", open)
	}
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				i = skipLine(src, i)
			} else if i+1 < len(src) && src[i+1] == '*' {
				end, err := skipBlockComment(src, i)
				if err != nil {
					return -1, err
				}
				i = end
			}
		case '"', '\'':
			end, err := skipQuoted(src, i, c)
			if err != nil {
				return -1, err
			}
			i = end
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("unbalanced brace opened at offset %d", open)
}

// NextCodeByte returns the index of the first occurrence of c at or after
// from that is not inside a comment or literal, or -1.
func NextCodeByte(src string, from int, c byte) int {
	for i := from; i < len(src); i++ {
		switch ch := src[i]; ch {
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				i = skipLine(src, i)
			} else if i+1 < len(src) && src[i+1] == '*' {
				end, err := skipBlockComment(src, i)
				if err != nil {
					return -1
				}
				i = end
			} else if ch == c {
				return i
			}
		case '"', '\'':
			if ch == c {
				return i
			}
			end, err := skipQuoted(src, i, ch)
			if err != nil {
				return -1
			}
			i = end
		default:
			if ch == c {
				return i
			}
		}
	}
	return -1
}

// skipLine returns the index of the newline ending the line containing i
// (or the last byte).
func skipLine(src string, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(src string, i int) (int, error) {
	for j := i + 2; j+1 < len(src); j++ {
		if src[j] == '*' && src[j+1] == '/' {
			return j + 1, nil
		}
	}
	return -1, fmt.Errorf("unterminated block comment at offset %d", i)
}

func skipQuoted(src string, i int, quote byte) (int, error) {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j, nil
		case '\n':
			return -1, fmt.Errorf("unterminated literal at offset %d", i)
		}
	}
	return -1, fmt.Errorf("unterminated literal at offset %d", i)
}

// lineStart returns the offset of the first byte of the line containing i.
func lineStart(src string, i int) int {
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}
