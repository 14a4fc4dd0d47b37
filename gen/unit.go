package gen

import (
	"path"
	"sort"
	"strconv"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/naming"
)

const (
	protomxPkg    = "github.com/hysios/protomx"
	descriptorPkg = protomxPkg + "/descriptor"
	dynamicPkg    = protomxPkg + "/dynamic"
	rpcPkg        = protomxPkg + "/rpc"
	wktPkg        = protomxPkg + "/wkt"
)

// reservedAliases are names generated code uses at package level or as
// import names of its runtime.
var reservedAliases = []string{
	"protomx", "descriptor", "dynamic", "rpc", "wkt",
	"context", "time", "strconv", "schema", "rawDesc",
}

// unit is one generated Go package.
type unit struct {
	g          *generator
	importPath string
	name       string
	files      []*descriptor.File

	imports map[string]string
	taken   map[string]bool
}

func (g *generator) newUnit(importPath, name string) *unit {
	u := &unit{
		g:          g,
		importPath: importPath,
		name:       name,
		imports:    make(map[string]string),
		taken:      make(map[string]bool),
	}
	for _, r := range reservedAliases {
		u.taken[r] = true
	}
	u.taken[name] = true
	return u
}

// use records an import and returns the name code refers to it by.
func (u *unit) use(importPath string) string {
	if alias, ok := u.imports[importPath]; ok {
		return alias
	}
	alias := path.Base(importPath)
	u.imports[importPath] = alias
	return alias
}

// useUnit imports another generated package under a unique alias.
func (u *unit) useUnit(other *unit) string {
	if alias, ok := u.imports[other.importPath]; ok {
		return alias
	}
	alias := other.name
	for i := 1; u.taken[alias]; i++ {
		alias = other.name + strconv.Itoa(i)
	}
	u.taken[alias] = true
	u.imports[other.importPath] = alias
	return alias
}

func (u *unit) goImports() []*GoImport {
	paths := make([]string, 0, len(u.imports))
	for p := range u.imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*GoImport, 0, len(paths))
	for _, p := range paths {
		imp := &GoImport{PkgName: p}
		if alias := u.imports[p]; alias != path.Base(p) {
			imp.Alias = alias
		}
		out = append(out, imp)
	}
	return out
}

// qualify names a declaration of f as seen from u.
func (u *unit) qualify(f *descriptor.File, ident string) string {
	other := u.g.unitFor(f)
	if other == u {
		return ident
	}
	return u.useUnit(other) + "." + ident
}

// checkNames catches identifiers clashing across the proto packages merged
// into one unit.
func (u *unit) checkNames() error {
	scope := naming.NewScope()
	claim := func(ident, file, fullName string) error {
		origin := file + ":" + fullName
		if prev, ok := scope.Claim(ident, origin); !ok {
			return &descriptor.NameCollisionError{Name: ident, First: prev, Second: origin}
		}
		return nil
	}

	for _, f := range u.files {
		var err error
		walk(f, func(m *descriptor.Message) {
			if err == nil {
				err = claim(m.GoName, f.Path, m.FullName)
			}
			for _, fld := range m.Fields {
				if err == nil && fld.WrapperName != "" {
					err = claim(fld.WrapperName, f.Path, fld.FullName)
				}
			}
		}, func(e *descriptor.Enum) {
			if err == nil {
				err = claim(e.GoName, f.Path, e.FullName)
			}
			for _, v := range e.Values {
				if err == nil {
					err = claim(v.GoName, f.Path, v.FullName)
				}
			}
		})
		for _, s := range f.Services {
			for _, ident := range []string{s.GoName + "Client", s.GoName + "Server"} {
				if err == nil {
					err = claim(ident, f.Path, s.FullName)
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// walk visits the messages and enums of f depth first in declaration
// order. Map entries are skipped.
func walk(f *descriptor.File, msg func(*descriptor.Message), enum func(*descriptor.Enum)) {
	for _, e := range f.Enums {
		enum(e)
	}
	var visit func(*descriptor.Message)
	visit = func(m *descriptor.Message) {
		if m.MapEntry {
			return
		}
		msg(m)
		for _, e := range m.Enums {
			enum(e)
		}
		for _, n := range m.Messages {
			visit(n)
		}
	}
	for _, m := range f.Messages {
		visit(m)
	}
}

// file renders the declarations of f: enums, then messages, then services.
func (u *unit) file(f *descriptor.File) []string {
	var enums, msgs, svcs []string
	walk(f, func(m *descriptor.Message) {
		msgs = append(msgs, u.message(m))
	}, func(e *descriptor.Enum) {
		enums = append(enums, u.enum(e))
	})
	for _, s := range f.Services {
		svcs = append(svcs, u.service(s))
	}
	return append(append(enums, msgs...), svcs...)
}
