package writeback

import (
	"mvdan.cc/gofumpt/format"
)

// FormatGo formats generated Go source with gofumpt.
func FormatGo(content []byte) ([]byte, error) {
	return format.Source(content, format.Options{})
}
