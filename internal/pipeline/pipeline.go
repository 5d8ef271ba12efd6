// Package pipeline sequences one static-build generation: reset the working
// tree, select upstream files, patch them, then hand off to the compiler.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"

	"github.com/agentic-research/babelpatch/api"
	"github.com/agentic-research/babelpatch/internal/build"
	"github.com/agentic-research/babelpatch/internal/config"
	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/linter"
	"github.com/agentic-research/babelpatch/internal/logging"
	"github.com/agentic-research/babelpatch/internal/manifest"
	"github.com/agentic-research/babelpatch/internal/patches"
	"github.com/agentic-research/babelpatch/internal/router"
	"github.com/agentic-research/babelpatch/internal/rules"
	"github.com/agentic-research/babelpatch/internal/selector"
	"github.com/agentic-research/babelpatch/internal/worktree"
	"github.com/agentic-research/babelpatch/internal/writeback"
)

// State is a step of the run. The machine is linear; any error moves it to
// StateFailed and the run stops.
type State string

const (
	StateClean     State = "Clean"
	StateSelecting State = "Selecting"
	StatePatching  State = "Patching"
	StateReady     State = "ReadyForCompile"
	StateFailed    State = "Failed"
)

// Options configures one run.
type Options struct {
	Manifest *api.Manifest
	// ManifestName identifies the manifest in logs and the ledger.
	ManifestName string
	Upstream     billy.Filesystem
	Tree         *worktree.Tree
	// WorkRoot is the on-disk location of Tree, used for the compilation
	// database and the optional compile step.
	WorkRoot       string
	Policy         rules.NoMatchPolicy
	Validate       bool
	Strict         bool
	AllowShadowing bool
	Compile        config.Compile
	Logger         zerolog.Logger
}

// Report summarises a run, successful or not.
type Report struct {
	State       State
	Transitions []State
	Started     time.Time
	Copied      []string
	Hits        map[string]int
	Unmatched   []rules.Unmatch
	Lint        map[string][]linter.Diagnostic
	Diagnostics []logging.Diagnostic
	// Digests maps every working-tree file to its hex sha256.
	Digests map[string]string
	Routers []router.Router
	Archive string
}

type Pipeline struct {
	opts   Options
	logger zerolog.Logger
	diag   *logging.Diagnostics
	report *Report
}

func New(opts Options) *Pipeline {
	logger := logging.Component(opts.Logger, "pipeline")
	return &Pipeline{
		opts:   opts,
		logger: logger,
		diag:   logging.NewDiagnostics(logger),
		report: &Report{
			Hits: make(map[string]int),
			Lint: make(map[string][]linter.Diagnostic),
		},
	}
}

// Run executes the pipeline with opts.
func Run(ctx context.Context, opts Options) (*Report, error) {
	return New(opts).Run(ctx)
}

// Run executes every step in order. The returned report is never nil; on
// error its State is StateFailed.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	p.report.Started = time.Now()
	err := p.run(ctx)
	if err != nil {
		p.transition(StateFailed)
		p.logger.Error().Err(err).Msg("run failed")
	}
	p.report.Diagnostics = p.diag.Items()
	return p.report, err
}

func (p *Pipeline) run(ctx context.Context) error {
	m := p.opts.Manifest
	p.transition(StateClean)

	if err := manifest.Validate(m, p.opts.AllowShadowing, p.diag); err != nil {
		return err
	}
	p.report.Routers = router.GenerateAll(m.CxxNamespace, manifest.Routes(m))
	engine, err := rules.NewEngine(patches.Global(), patches.Targeted(m), router.InjectionRules(p.report.Routers)...)
	if err != nil {
		return perr.Wrap(err, perr.ErrRule, "build rule set")
	}

	if err := p.opts.Tree.Reset(); err != nil {
		return err
	}

	p.transition(StateSelecting)
	copied, err := selector.Select(m, p.opts.Upstream, p.opts.Tree, logging.Component(p.logger, "selector"))
	if err != nil {
		return err
	}
	p.report.Copied = copied

	p.transition(StatePatching)
	if err := p.patch(ctx, engine); err != nil {
		return err
	}
	if err := p.checkRouters(copied); err != nil {
		return err
	}

	plan, err := p.handoff()
	if err != nil {
		return err
	}
	if err := p.digest(); err != nil {
		return err
	}
	if !p.opts.Compile.Enabled {
		return nil
	}
	archive, err := build.Compile(ctx, plan, logging.Component(p.logger, "build"))
	if err != nil {
		return err
	}
	p.report.Archive = archive
	return nil
}

func (p *Pipeline) patch(ctx context.Context, engine *rules.Engine) error {
	tree := p.opts.Tree
	patched := 0
	err := tree.Walk(func(f string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rules.Eligible(f) {
			return nil
		}
		before, err := tree.ReadFile(f)
		if err != nil {
			return err
		}
		res, err := engine.Apply(f, before)
		if err != nil {
			return perr.Wrap(err, perr.ErrRule, "apply rules")
		}
		for name, n := range res.Hits {
			p.report.Hits[name] += n
		}

		if p.opts.Validate {
			if err := writeback.Regressions(before, res.Content, f); err != nil {
				return err
			}
		}
		diags, err := linter.Lint(res.Content, f)
		if err != nil {
			return fmt.Errorf("lint %s: %w", f, err)
		}
		if len(diags) > 0 {
			p.report.Lint[f] = diags
			for _, d := range diags {
				p.diag.Warn("lint", f, d.String())
			}
		}

		if !res.Changed {
			return nil
		}
		patched++
		return tree.WriteFile(f, res.Content)
	})
	if err != nil {
		return err
	}
	p.logger.Info().Int("patched", patched).Int("rules_matched", engine.MatchedCount()).Msg("patched")

	p.report.Unmatched = engine.Unmatched()
	if err := engine.Enforce(p.opts.Policy, p.diag); err != nil {
		return err
	}
	if p.opts.Strict && len(p.report.Lint) > 0 {
		return perr.Newf(perr.ErrLint, "%d file(s) still carry plugin machinery", len(p.report.Lint))
	}
	return nil
}

// checkRouters re-reads each patched host and its factory sources and
// traces every id through the dispatch that actually landed.
func (p *Pipeline) checkRouters(copied []string) error {
	byBase := make(map[string]string, len(copied))
	for _, f := range copied {
		byBase[path.Base(f)] = f
	}

	for _, r := range p.report.Routers {
		files := []string{r.Category.Host}
		for _, rt := range r.Routes {
			files = append(files, rt.Source)
		}
		var src []byte
		seen := make(map[string]bool)
		for _, base := range files {
			if seen[base] {
				continue
			}
			seen[base] = true
			f, ok := byBase[base]
			if !ok {
				return perr.Newf(perr.ErrConfig, "router %s: %s was not found upstream", r.Category.Name, base)
			}
			data, err := p.opts.Tree.ReadFile(f)
			if err != nil {
				return err
			}
			src = append(src, data...)
			src = append(src, '\n')
		}
		if err := router.Check(src, r.Category.BaseClass, r.Routes); err != nil {
			return perr.Wrapf(err, perr.ErrValidation, "router %s", r.Category.Name)
		}
	}
	return nil
}

// handoff adds the glue unit and the compilation database; the tree is then
// ready for the compiler.
func (p *Pipeline) handoff() (build.Plan, error) {
	tree := p.opts.Tree
	if err := build.WriteGlue(tree); err != nil {
		return build.Plan{}, err
	}
	files, err := tree.Files()
	if err != nil {
		return build.Plan{}, err
	}
	plan, err := build.NewPlan(p.opts.WorkRoot, p.opts.Manifest.IncludeDir, files, p.opts.Compile)
	if err != nil {
		return build.Plan{}, err
	}
	if err := build.WriteCompileDB(tree, plan); err != nil {
		return build.Plan{}, err
	}
	p.transition(StateReady)
	return plan, nil
}

func (p *Pipeline) digest() error {
	p.report.Digests = make(map[string]string)
	return p.opts.Tree.Walk(func(f string) error {
		data, err := p.opts.Tree.ReadFile(f)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		p.report.Digests[f] = hex.EncodeToString(sum[:])
		return nil
	})
}

func (p *Pipeline) transition(to State) {
	from := p.report.State
	p.report.State = to
	p.report.Transitions = append(p.report.Transitions, to)
	p.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("state")
}
