package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/babelpatch/api"
)

// Query evaluates a JSONPath selector against the JSON form of m, e.g.
// $.plugins[?(@.category == 'fingerprints')].id
func Query(m *api.Manifest, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, err
	}
	return x.Get(root), nil
}
