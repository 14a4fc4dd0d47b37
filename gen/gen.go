// Package gen renders a schema graph as Go source. Output depends only on
// the input descriptors and the options: the same set always produces the
// same bytes.
package gen

import (
	"bytes"
	"embed"
	"go/format"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/naming"
	"github.com/hysios/protomx/wkt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

//go:embed template/*.tmpl
var templates embed.FS

var unitTmpl = template.Must(template.ParseFS(templates, "template/unit.go.tmpl"))

type Options struct {
	// ValidatedVariant adds a Validate method to every message.
	ValidatedVariant bool
	// IncludeWellKnownTypes generates the google.protobuf files as regular
	// packages instead of mapping their types onto native Go types.
	IncludeWellKnownTypes bool
	Naming                naming.Convention
	// ImportPrefix is the import path output paths are relative to.
	ImportPrefix string
	// RootPackage names the Go package of files declaring no package.
	RootPackage string
	// Targets lists the files to generate. Empty means every file of the
	// input that is not a well-known one.
	Targets []string

	Table  *wkt.Table
	Logger *zap.Logger
}

// File is one generated source file.
type File struct {
	Path    string
	Content []byte
}

// Generate renders every target of set.
func Generate(set *descriptorpb.FileDescriptorSet, opts Options) ([]*File, error) {
	return GenerateFiles(set.GetFile(), opts)
}

func GenerateFiles(files []*descriptorpb.FileDescriptorProto, opts Options) ([]*File, error) {
	if opts.Table == nil {
		opts.Table = wkt.Standard()
	}
	log := logger.Named(opts.Logger, "gen")

	schema, err := descriptor.LoadFiles(files,
		descriptor.WithFallback(wkt.FileProtos()...),
		descriptor.WithNaming(opts.Naming),
		descriptor.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}

	g := &generator{
		opts:    opts,
		schema:  schema,
		log:     log,
		unitOf:  make(map[string]*unit),
		foreign: make(map[string]*unit),
	}
	if err := g.plan(files); err != nil {
		return nil, err
	}

	var out []*File
	for _, u := range g.units {
		f, err := g.render(u)
		if err != nil {
			return nil, err
		}
		log.Debug("generate unit", zap.String("path", f.Path), zap.Int("files", len(u.files)), zap.Int("bytes", len(f.Content)))
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

type generator struct {
	opts    Options
	schema  *descriptor.Schema
	log     *zap.Logger
	units   []*unit
	unitOf  map[string]*unit
	foreign map[string]*unit
}

// plan picks the files to generate and groups them into units, one per Go
// import path.
func (g *generator) plan(inputs []*descriptorpb.FileDescriptorProto) error {
	want := make(map[string]bool)
	if len(g.opts.Targets) == 0 {
		for _, fd := range inputs {
			if !wkt.IsWellKnownFile(fd.GetName()) {
				want[fd.GetName()] = true
			}
		}
	}
	for _, t := range g.opts.Targets {
		if g.schema.File(t) == nil {
			return errors.Errorf("gen: target %s is not in the input", t)
		}
		want[t] = true
	}

	if g.opts.IncludeWellKnownTypes {
		for _, f := range g.schema.Files {
			if wkt.IsWellKnownFile(f.Path) && importedBy(f, g.schema, want) {
				want[f.Path] = true
			}
		}
	}
	// methods need concrete message types, so well-known messages used as
	// requests or responses are generated even without the option
	for _, f := range g.schema.Files {
		if !want[f.Path] {
			continue
		}
		for _, s := range f.Services {
			for _, m := range s.Methods {
				for _, t := range []*descriptor.Message{m.Input, m.Output} {
					if wkt.IsWellKnownFile(t.File.Path) {
						want[t.File.Path] = true
					}
				}
			}
		}
	}

	byPath := make(map[string]*unit)
	for _, f := range g.schema.Files {
		if !want[f.Path] {
			continue
		}
		importPath, name := g.locate(f)
		u, ok := byPath[importPath]
		if !ok {
			u = g.newUnit(importPath, name)
			byPath[importPath] = u
			g.units = append(g.units, u)
		}
		u.files = append(u.files, f)
		g.unitOf[f.Path] = u
	}

	for _, u := range g.units {
		if err := u.checkNames(); err != nil {
			return err
		}
	}
	return nil
}

// importedBy reports whether f is a transitive import of a wanted file.
func importedBy(f *descriptor.File, s *descriptor.Schema, want map[string]bool) bool {
	seen := make(map[string]bool)
	var visit func(*descriptor.File) bool
	visit = func(x *descriptor.File) bool {
		if seen[x.Path] {
			return false
		}
		seen[x.Path] = true
		for _, imp := range x.Imports {
			if imp == f || visit(imp) {
				return true
			}
		}
		return false
	}
	for _, x := range s.Files {
		if want[x.Path] && !wkt.IsWellKnownFile(x.Path) && visit(x) {
			return true
		}
	}
	return false
}

// locate derives the Go import path and package name of f.
func (g *generator) locate(f *descriptor.File) (string, string) {
	if gp := f.GoPackage; gp != "" && f.Package != "" && !wkt.IsWellKnownFile(f.Path) {
		importPath, name, ok := strings.Cut(gp, ";")
		if !ok {
			name = naming.PackageName(path.Base(importPath))
		}
		return importPath, name
	}
	if f.Package == "" {
		name := g.opts.RootPackage
		if name == "" && g.opts.ImportPrefix != "" {
			name = naming.PackageName(path.Base(g.opts.ImportPrefix))
		}
		if name == "" {
			name = "pb"
		}
		return g.opts.ImportPrefix, name
	}
	dir := strings.ReplaceAll(f.Package, ".", "/")
	if g.opts.ImportPrefix != "" {
		dir = g.opts.ImportPrefix + "/" + dir
	}
	return dir, naming.PackageName(f.Package)
}

// outputPath is where a unit is written, relative to ImportPrefix.
func (g *generator) outputPath(u *unit) string {
	rel := u.importPath
	if p := g.opts.ImportPrefix; p != "" {
		switch {
		case rel == p:
			rel = ""
		case strings.HasPrefix(rel, p+"/"):
			rel = rel[len(p)+1:]
		}
	}
	return path.Join(rel, u.name+".pb.go")
}

// unitFor returns the unit declaring f. Files outside the output get a
// unit of their own that is only ever imported.
func (g *generator) unitFor(f *descriptor.File) *unit {
	if u, ok := g.unitOf[f.Path]; ok {
		return u
	}
	importPath, name := g.locate(f)
	u, ok := g.foreign[importPath]
	if !ok {
		u = g.newUnit(importPath, name)
		g.foreign[importPath] = u
	}
	return u
}

// wellKnown returns the table entry of a well-known message that is not
// generated here.
func (g *generator) wellKnown(m *descriptor.Message) (*wkt.Entry, bool) {
	if _, ok := g.unitOf[m.File.Path]; ok {
		return nil, false
	}
	return g.opts.Table.Lookup(m.FullName)
}

// rawDesc serializes the unit's files and their transitive imports without
// source info.
func (g *generator) rawDesc(u *unit) ([]byte, error) {
	need := make(map[string]bool)
	var mark func(*descriptor.File)
	mark = func(f *descriptor.File) {
		if f == nil || need[f.Path] {
			return
		}
		need[f.Path] = true
		for _, imp := range f.Imports {
			mark(imp)
		}
	}
	for _, f := range u.files {
		mark(f)
	}

	set := new(descriptorpb.FileDescriptorSet)
	for _, f := range g.schema.Files {
		if !need[f.Path] {
			continue
		}
		fd := proto.Clone(f.Proto).(*descriptorpb.FileDescriptorProto)
		fd.SourceCodeInfo = nil
		set.File = append(set.File, fd)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(set)
}

func (g *generator) render(u *unit) (*File, error) {
	out := g.outputPath(u)
	raw, err := g.rawDesc(u)
	if err != nil {
		return nil, errors.Wrapf(err, "gen: embed descriptors of %s", out)
	}

	ctx := &UnitContext{PkgName: u.name, RawDesc: raw}
	u.use(protomxPkg)
	for _, f := range u.files {
		ctx.Sources = append(ctx.Sources, f.Path)
		ctx.Decls = append(ctx.Decls, u.file(f)...)
	}
	ctx.GoImports = u.goImports()

	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, ctx); err != nil {
		return nil, errors.Wrapf(err, "gen: render %s", out)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "gen: format %s", out)
	}
	return &File{Path: out, Content: src}, nil
}
