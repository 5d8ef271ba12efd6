package api

import "path"

// Manifest is the compile-time declarative description of one static build.
// It names the upstream modules to extract and every plugin implementation
// that must stay reachable once the runtime plugin registry is gone.
type Manifest struct {
	// IncludeDir is the namespace directory under include/ (e.g. "openbabel").
	IncludeDir string `hcl:"include_dir" json:"include_dir"`
	// CxxNamespace is the C++ namespace the generated code lives in.
	CxxNamespace string `hcl:"cxx_namespace" json:"cxx_namespace"`
	// Modules selects header/implementation pairs from the upstream tree.
	Modules []Module `hcl:"module,block" json:"modules"`
	// Categories describes each plugin base class.
	Categories []Category `hcl:"category,block" json:"categories"`
	// Plugins is the static plugin registry, in dispatch order.
	Plugins []Plugin `hcl:"plugin,block" json:"plugins"`
}

// Module identifies one logical upstream module.
// A header may exist without an implementation file.
type Module struct {
	Subdir  string `hcl:"subdir,optional" json:"subdir,omitempty"`
	Base    string `hcl:"base" json:"base"`
	HasImpl bool   `hcl:"has_impl,optional" json:"has_impl"`
}

// HeaderPath returns the slash-separated path of the module header relative
// to a tree root.
func (m Module) HeaderPath(includeDir string) string {
	return path.Join("include", includeDir, m.Subdir, m.Base+".h")
}

// ImplPath returns the slash-separated path of the implementation file
// relative to a tree root.
func (m Module) ImplPath() string {
	return path.Join("src", m.Subdir, m.Base+".cpp")
}

// Category describes a plugin base class and where its router lives.
type Category struct {
	Name string `hcl:"name,label" json:"name"`
	// BaseClass is the polymorphic type FindType returns (e.g. "OBFormat").
	BaseClass string `hcl:"base_class" json:"base_class"`
	// Header is the basename of the header declaring BaseClass.
	Header string `hcl:"header" json:"header"`
	// Host is the basename of the translation unit that receives the router.
	Host string `hcl:"host" json:"host"`
}

// Plugin is one statically reachable implementation.
type Plugin struct {
	Category string `hcl:"category,label" json:"category"`
	ID       string `hcl:"id,label" json:"id"`
	// SourceFile is the basename of the file defining Class.
	SourceFile string `hcl:"source_file" json:"source_file"`
	Class      string `hcl:"class" json:"class"`
	// CtorArgs is passed verbatim to the constructor; empty means default construction.
	CtorArgs string `hcl:"ctor_args,optional" json:"ctor_args,omitempty"`
}

// Route is one branch of a generated dispatch function. Factory is the
// generated function constructing Class, New<Class> unless several routes
// share a class.
type Route struct {
	ID       string
	Class    string
	Factory  string
	CtorArgs string
	Source   string
}

// RouterSpec is the derived view of the registry for one category.
// It is recomputed from the Manifest on every generation and never stored.
type RouterSpec struct {
	Category Category
	Routes   []Route
}
