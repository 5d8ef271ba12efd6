package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchBrace_Nested(t *testing.T) {
	src := "f() { if (x) { y(); } }"
	open := strings.Index(src, "{")
	end, err := MatchBrace(src, open)
	require.NoError(t, err)
	assert.Equal(t, len(src)-1, end)
}

func TestMatchBrace_IgnoresCommentsAndLiterals(t *testing.T) {
	src := `f() {
  // stray } in a comment
  /* and { here */
  const char* s = "}{";
  char c = '}';
  return;
}
tail`
	open := strings.Index(src, "{")
	end, err := MatchBrace(src, open)
	require.NoError(t, err)
	assert.Equal(t, "}\ntail", src[end:])
}

func TestMatchBrace_EscapedQuote(t *testing.T) {
	src := `{ s = "a\"}"; }`
	end, err := MatchBrace(src, 0)
	require.NoError(t, err)
	assert.Equal(t, len(src)-1, end)
}

func TestMatchBrace_Unbalanced(t *testing.T) {
	_, err := MatchBrace("{ { }", 0)
	assert.Error(t, err)
}

func TestMatchBrace_NotABrace(t *testing.T) {
	_, err := MatchBrace("abc", 1)
	assert.Error(t, err)
}

func TestNextCodeByte_SkipsComment(t *testing.T) {
	src := "void f() /* { */ {"
	assert.Equal(t, len(src)-1, NextCodeByte(src, 0, '{'))
	assert.Equal(t, -1, NextCodeByte("int x; // {", 0, '{'))
}
