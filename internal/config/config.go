// Package config loads babelpatch settings with koanf: built-in defaults,
// then babelpatch.toml, then BABELPATCH_* environment variables. Flags are
// applied on top by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/rules"
)

// FileName is the config file looked up in the working directory.
const FileName = "babelpatch.toml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: BABELPATCH_COMPILE__CXX sets compile.cxx.
const EnvPrefix = "BABELPATCH_"

type Config struct {
	Upstream string `koanf:"upstream"`
	Work     string `koanf:"work"`
	// Manifest is a path to an .hcl or .json manifest; empty selects the
	// embedded OpenBabel manifest.
	Manifest       string  `koanf:"manifest"`
	NoMatch        string  `koanf:"no_match"`
	Validate       bool    `koanf:"validate"`
	Strict         bool    `koanf:"strict"`
	AllowShadowing bool    `koanf:"allow_shadowing"`
	Ledger         string  `koanf:"ledger"`
	Verbosity      int     `koanf:"verbosity"`
	Compile        Compile `koanf:"compile"`
}

type Compile struct {
	Enabled bool     `koanf:"enabled"`
	CXX     string   `koanf:"cxx"`
	AR      string   `koanf:"ar"`
	Flags   []string `koanf:"flags"`
	Archive string   `koanf:"archive"`
}

func defaults() map[string]any {
	return map[string]any{
		"upstream":        "openbabel",
		"work":            "build/openbabel-static",
		"manifest":        "",
		"no_match":        string(rules.NoMatchWarn),
		"validate":        true,
		"strict":          false,
		"allow_shadowing": false,
		"ledger":          "",
		"verbosity":       0,
		"compile.enabled": false,
		"compile.cxx":     "c++",
		"compile.ar":      "ar",
		"compile.flags":   []string{"-std=c++14", "-O2", "-DHAVE_SHARED_POINTER"},
		"compile.archive": "libopenbabel_static.a",
	}
}

// Load reads configuration from path (FileName when empty; a missing
// default file is fine, a missing explicit file is not).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Check validates settings. Callers that change fields after Load (flag
// overrides) must call it again.
func (c *Config) Check() error {
	if _, err := rules.ParseNoMatchPolicy(c.NoMatch); err != nil {
		return err
	}
	return checkWork(c.Work, c.Upstream)
}

// checkWork rejects working roots whose reset would delete something other
// than a previous working tree: the filesystem root, the current directory,
// or any directory overlapping the upstream checkout.
func checkWork(work, upstream string) error {
	if strings.TrimSpace(work) == "" {
		return perr.New(perr.ErrConfig, "work directory must not be empty")
	}
	if filepath.Clean(work) == "." {
		return perr.New(perr.ErrConfig, "work directory must not be the current directory")
	}
	absWork, err := filepath.Abs(work)
	if err != nil {
		return perr.Wrapf(err, perr.ErrConfig, "resolve work directory %s", work)
	}
	if filepath.Dir(absWork) == absWork {
		return perr.Newf(perr.ErrConfig, "work directory %s is a filesystem root", work)
	}
	if cwd, err := os.Getwd(); err == nil && cwd == absWork {
		return perr.New(perr.ErrConfig, "work directory must not be the current directory")
	}
	if upstream == "" {
		return nil
	}
	absUp, err := filepath.Abs(upstream)
	if err != nil {
		return perr.Wrapf(err, perr.ErrConfig, "resolve upstream %s", upstream)
	}
	if within(absWork, absUp) || within(absUp, absWork) {
		return perr.Newf(perr.ErrConfig, "work directory %s overlaps upstream %s", work, upstream).
			WithDetail("work", absWork).
			WithDetail("upstream", absUp)
	}
	return nil
}

// within reports whether p is dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Policy returns the parsed no-match policy. Check has already validated it.
func (c *Config) Policy() rules.NoMatchPolicy {
	p, _ := rules.ParseNoMatchPolicy(c.NoMatch)
	return p
}
