package rules

import (
	"fmt"
	"strings"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/logging"
)

// NoMatchPolicy decides what happens to rules that matched nothing in a run.
type NoMatchPolicy string

const (
	NoMatchIgnore NoMatchPolicy = "ignore"
	NoMatchWarn   NoMatchPolicy = "warn"
	NoMatchFail   NoMatchPolicy = "fail"
)

func ParseNoMatchPolicy(s string) (NoMatchPolicy, error) {
	switch p := NoMatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case NoMatchIgnore, NoMatchWarn, NoMatchFail:
		return p, nil
	case "":
		return NoMatchWarn, nil
	default:
		return "", perr.Newf(perr.ErrConfig, "unknown no-match policy %q (want ignore, warn or fail)", s)
	}
}

// Enforce applies policy to the engine's unmatched rules. Under warn each one
// is recorded in diag; under fail the first report is an error listing all.
func (e *Engine) Enforce(policy NoMatchPolicy, diag *logging.Diagnostics) error {
	unmatched := e.Unmatched()
	if len(unmatched) == 0 || policy == NoMatchIgnore {
		return nil
	}

	names := make([]string, 0, len(unmatched))
	for _, u := range unmatched {
		msg := fmt.Sprintf("rule %s (%s) matched nothing", u.Rule, u.Scope)
		if u.Absent {
			msg += "; no file in scope was patched"
		}
		if policy == NoMatchWarn && diag != nil {
			diag.Warn("rules", u.Scope.File, msg)
		}
		names = append(names, u.Rule)
	}

	if policy == NoMatchFail {
		return perr.Newf(perr.ErrNoMatch, "%d rule(s) matched nothing: %s", len(names), strings.Join(names, ", ")).
			WithDetail("rules", names)
	}
	return nil
}
