// Package manifest loads and validates the declarative build manifest: the
// modules to extract from upstream and the static plugin registry.
package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/babelpatch/api"
	perr "github.com/agentic-research/babelpatch/internal/errors"
	"github.com/agentic-research/babelpatch/internal/logging"
)

//go:embed openbabel.hcl
var defaultManifest []byte

// DefaultName is the name the embedded manifest reports in diagnostics.
const DefaultName = "openbabel.hcl"

var identRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)

// Default decodes the embedded OpenBabel manifest.
func Default() (*api.Manifest, error) {
	return Decode(DefaultName, defaultManifest)
}

// Load reads a manifest from disk. An empty path selects the embedded default.
func Load(p string) (*api.Manifest, error) {
	if p == "" {
		return Default()
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrConfig, "read manifest %s", p)
	}
	return Decode(p, data)
}

// Decode parses data according to the extension of filename: .hcl or .json.
func Decode(filename string, data []byte) (*api.Manifest, error) {
	var m api.Manifest
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		if err := hclsimple.Decode(filename, data, nil, &m); err != nil {
			return nil, perr.Wrapf(err, perr.ErrConfig, "decode manifest %s", filename)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, perr.Wrapf(err, perr.ErrConfig, "decode manifest %s", filename)
		}
	default:
		return nil, perr.Newf(perr.ErrConfig, "manifest %s: unsupported extension", filename)
	}
	return &m, nil
}

// Validate checks the manifest invariants. Duplicate IDs within a category
// fail with AMBIGUOUS_REGISTRY unless allowShadowing is set, in which case
// they are reported to diag and the first declaration wins.
func Validate(m *api.Manifest, allowShadowing bool, diag *logging.Diagnostics) error {
	if m.IncludeDir == "" || m.CxxNamespace == "" {
		return perr.New(perr.ErrConfig, "manifest: include_dir and cxx_namespace are required")
	}
	if !identRe.MatchString(m.CxxNamespace) {
		return perr.Newf(perr.ErrConfig, "manifest: cxx_namespace %q is not an identifier", m.CxxNamespace)
	}

	seen := make(map[string]bool)
	for _, mod := range m.Modules {
		if mod.Base == "" {
			return perr.New(perr.ErrConfig, "manifest: module without base")
		}
		key := path.Join(mod.Subdir, mod.Base)
		if seen[key] {
			return perr.Newf(perr.ErrConfig, "manifest: duplicate module %s", key).
				WithDetail("module", key)
		}
		seen[key] = true
	}

	files := Basenames(m)
	categories := make(map[string]api.Category)
	for _, c := range m.Categories {
		if _, dup := categories[c.Name]; dup {
			return perr.Newf(perr.ErrConfig, "manifest: duplicate category %s", c.Name)
		}
		if !identRe.MatchString(c.BaseClass) {
			return perr.Newf(perr.ErrConfig, "category %s: base_class %q is not an identifier", c.Name, c.BaseClass)
		}
		for _, f := range []string{c.Header, c.Host} {
			if !files[f] {
				return perr.Newf(perr.ErrConfig, "category %s: %q is not selected by any module", c.Name, f).
					WithDetail("category", c.Name)
			}
		}
		categories[c.Name] = c
	}

	ids := make(map[string]int)
	for i, p := range m.Plugins {
		if _, ok := categories[p.Category]; !ok {
			return perr.Newf(perr.ErrConfig, "plugin %s/%s: undefined category", p.Category, p.ID).
				WithDetail("category", p.Category)
		}
		if !validID(p.ID) {
			return perr.Newf(perr.ErrConfig, "plugin %s: invalid id %q", p.Category, p.ID)
		}
		if !identRe.MatchString(p.Class) {
			return perr.Newf(perr.ErrConfig, "plugin %s/%s: class %q is not an identifier", p.Category, p.ID, p.Class)
		}
		if !files[p.SourceFile] {
			return perr.Newf(perr.ErrConfig, "plugin %s/%s: source_file %q is not selected by any module",
				p.Category, p.ID, p.SourceFile).WithDetail("source_file", p.SourceFile)
		}

		key := p.Category + "\x00" + p.ID
		first, dup := ids[key]
		if !dup {
			ids[key] = i
			continue
		}
		prev := m.Plugins[first]
		if !allowShadowing {
			return perr.Newf(perr.ErrAmbiguous, "category %s: id %q declared by %s and %s",
				p.Category, p.ID, prev.Class, p.Class).
				WithDetail("category", p.Category).
				WithDetail("id", p.ID)
		}
		if diag != nil {
			diag.Warn("manifest", p.SourceFile,
				fmt.Sprintf("category %s: id %q shadowed by earlier %s", p.Category, p.ID, prev.Class))
		}
	}
	return nil
}

// Routes derives the router input for every category: categories with
// plugins in order of first appearance, then the empty ones in declaration
// order. Routes keep registry order and shadowed IDs are dropped.
func Routes(m *api.Manifest) []api.RouterSpec {
	byName := make(map[string]api.Category, len(m.Categories))
	for _, c := range m.Categories {
		byName[c.Name] = c
	}

	var order []string
	specs := make(map[string]*api.RouterSpec)
	seen := make(map[string]bool)
	// Factories share one C++ namespace across categories.
	factories := make(map[string]bool)
	classes := make(map[string]int)
	for _, p := range m.Plugins {
		classes[p.Category+"\x00"+p.Class]++
	}

	for _, p := range m.Plugins {
		c, ok := byName[p.Category]
		if !ok {
			continue
		}
		spec := specs[p.Category]
		if spec == nil {
			spec = &api.RouterSpec{Category: c}
			specs[p.Category] = spec
			order = append(order, p.Category)
		}
		if seen[p.Category+"\x00"+p.ID] {
			continue
		}
		seen[p.Category+"\x00"+p.ID] = true

		factory := "New" + p.Class
		if classes[p.Category+"\x00"+p.Class] > 1 {
			factory += "_" + mangle(p.ID)
		}
		factory = unique(factories, factory)
		spec.Routes = append(spec.Routes, api.Route{
			ID:       p.ID,
			Class:    p.Class,
			Factory:  factory,
			CtorArgs: p.CtorArgs,
			Source:   p.SourceFile,
		})
	}

	out := make([]api.RouterSpec, 0, len(m.Categories))
	for _, name := range order {
		out = append(out, *specs[name])
	}
	for _, c := range m.Categories {
		if specs[c.Name] == nil {
			out = append(out, api.RouterSpec{Category: c})
		}
	}
	return out
}

// Basenames returns the set of file basenames the manifest selects.
func Basenames(m *api.Manifest) map[string]bool {
	out := make(map[string]bool)
	for _, mod := range m.Modules {
		out[path.Base(mod.HeaderPath(m.IncludeDir))] = true
		if mod.HasImpl {
			out[path.Base(mod.ImplPath())] = true
		}
	}
	return out
}

// unique returns name, or name with the smallest numeric suffix not yet in
// used, and records the result.
func unique(used map[string]bool, name string) string {
	out := name
	for n := 2; used[out]; n++ {
		out = name + "_" + strconv.Itoa(n)
	}
	used[out] = true
	return out
}

// validID reports whether id can appear in a generated string literal:
// non-empty, no quote, backslash or control character.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '"' || c == '\\' || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// mangle turns an ID into an identifier suffix.
func mangle(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
