package descriptor

import (
	"fmt"
	"strings"

	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/naming"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type LoadOption struct {
	Logger   *zap.Logger
	Fallback []*descriptorpb.FileDescriptorProto
	Naming   *naming.Convention
}

type LoadOptFunc func(*LoadOption)

func WithLogger(l *zap.Logger) LoadOptFunc {
	return func(opt *LoadOption) {
		opt.Logger = l
	}
}

// WithFallback supplies files used only when an import is not in the set
// itself, typically the well-known types.
func WithFallback(files ...*descriptorpb.FileDescriptorProto) LoadOptFunc {
	return func(opt *LoadOption) {
		opt.Fallback = append(opt.Fallback, files...)
	}
}

// WithNaming makes the loader assign Go identifiers to every declaration.
// Identifier collisions then fail the load with a NameCollisionError.
func WithNaming(c naming.Convention) LoadOptFunc {
	return func(opt *LoadOption) {
		opt.Naming = &c
	}
}

// reservedIdents are method names of generated messages; fields must not
// take them.
var reservedIdents = []string{
	"Descriptor", "ToDynamic", "FromDynamic", "Marshal", "Unmarshal",
	"MarshalJSON", "UnmarshalJSON", "Reset", "String", "Validate",
}

// Load reads a serialized FileDescriptorSet.
func Load(raw []byte, opts ...LoadOptFunc) (*Schema, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return nil, errors.Wrap(err, "descriptor: read file descriptor set")
	}
	return LoadFiles(set.GetFile(), opts...)
}

// LoadFiles builds the schema graph of files. Imports missing from files
// are looked up in the fallback set.
func LoadFiles(files []*descriptorpb.FileDescriptorProto, opts ...LoadOptFunc) (*Schema, error) {
	var opt LoadOption
	for _, o := range opts {
		o(&opt)
	}

	l := &loader{
		log:      logger.Named(opt.Logger, "descriptor"),
		protos:   make(map[string]*descriptorpb.FileDescriptorProto),
		fallback: make(map[string]*descriptorpb.FileDescriptorProto),
		origins:  make(map[string]string),
		packages: make(map[string]bool),
		schema: &Schema{
			byPath:   make(map[string]*File),
			messages: make(map[string]*Message),
			enums:    make(map[string]*Enum),
			services: make(map[string]*Service),
		},
	}
	for _, fd := range opt.Fallback {
		l.fallback[fd.GetName()] = fd
	}

	order, err := l.order(files)
	if err != nil {
		return nil, err
	}
	for _, fd := range order {
		if err := l.declareFile(fd); err != nil {
			return nil, err
		}
	}
	if err := l.resolve(); err != nil {
		return nil, err
	}
	if opt.Naming != nil {
		if err := l.assignNames(*opt.Naming); err != nil {
			return nil, err
		}
	}

	l.log.Debug("schema loaded",
		zap.Int("files", len(l.schema.Files)),
		zap.Int("messages", len(l.schema.messages)),
		zap.Int("enums", len(l.schema.enums)),
		zap.Int("services", len(l.schema.services)),
	)
	return l.schema, nil
}

type loader struct {
	log      *zap.Logger
	protos   map[string]*descriptorpb.FileDescriptorProto
	fallback map[string]*descriptorpb.FileDescriptorProto
	// origins maps each declared full name to the file declaring it
	origins  map[string]string
	packages map[string]bool
	schema   *Schema
}

const (
	unvisited = iota
	visiting
	visited
)

// order sorts files so each follows its imports. Roots are taken in input
// order so the result depends only on the input.
func (l *loader) order(files []*descriptorpb.FileDescriptorProto) ([]*descriptorpb.FileDescriptorProto, error) {
	for _, fd := range files {
		if _, dup := l.protos[fd.GetName()]; dup {
			return nil, &InvalidSchemaError{File: fd.GetName(), Msg: "file appears twice in the set"}
		}
		l.protos[fd.GetName()] = fd
	}

	var (
		state = make(map[string]int)
		stack []string
		out   []*descriptorpb.FileDescriptorProto
		visit func(name, from string) error
	)
	visit = func(name, from string) error {
		switch state[name] {
		case visiting:
			for i, s := range stack {
				if s == name {
					cycle := append(append([]string(nil), stack[i:]...), name)
					return &CyclicImportError{Cycle: cycle}
				}
			}
		case visited:
			return nil
		}

		fd, ok := l.protos[name]
		if !ok {
			if fd, ok = l.fallback[name]; !ok {
				return &MissingImportError{File: from, Import: name}
			}
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range fd.GetDependency() {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = visited
		out = append(out, fd)
		return nil
	}

	for _, fd := range files {
		if err := visit(fd.GetName(), ""); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *loader) declareFile(fd *descriptorpb.FileDescriptorProto) error {
	fd = proto.Clone(fd).(*descriptorpb.FileDescriptorProto)
	f := &File{
		Path:       fd.GetName(),
		Package:    fd.GetPackage(),
		Syntax:     Proto2,
		GoPackage:  fd.GetOptions().GetGoPackage(),
		Deprecated: fd.GetOptions().GetDeprecated(),
		Proto:      fd,
	}
	if fd.GetSyntax() == string(Proto3) {
		f.Syntax = Proto3
	}
	for _, dep := range fd.GetDependency() {
		f.Imports = append(f.Imports, l.schema.byPath[dep])
	}

	pkg := f.Package
	for pkg != "" {
		l.packages[pkg] = true
		pkg = parentScope(pkg)
	}

	d := &declarer{loader: l, file: f, comments: commentsOf(fd)}
	for i, md := range fd.GetMessageType() {
		m, err := d.message(nil, md, i, []int32{4, int32(i)}, f.Package)
		if err != nil {
			return err
		}
		f.Messages = append(f.Messages, m)
	}
	for i, ed := range fd.GetEnumType() {
		e, err := d.enum(nil, ed, []int32{5, int32(i)}, f.Package)
		if err != nil {
			return err
		}
		f.Enums = append(f.Enums, e)
	}
	for i, sd := range fd.GetService() {
		s, err := d.service(sd, []int32{6, int32(i)})
		if err != nil {
			return err
		}
		f.Services = append(f.Services, s)
	}

	l.schema.Files = append(l.schema.Files, f)
	l.schema.byPath[f.Path] = f
	return nil
}

// claim registers a full name, failing when another file already declared
// it. Package-less files share one namespace, so this is also where two
// files both declaring "Test" are caught.
func (l *loader) claim(fullName, file string) error {
	if prev, ok := l.origins[fullName]; ok {
		return &NameCollisionError{Name: fullName, First: prev, Second: file}
	}
	l.origins[fullName] = file
	return nil
}

type declarer struct {
	*loader
	file     *File
	comments map[string]string
}

func (d *declarer) message(parent *Message, md *descriptorpb.DescriptorProto, index int, path []int32, scope string) (*Message, error) {
	m := &Message{
		Name:       md.GetName(),
		FullName:   join(scope, md.GetName()),
		File:       d.file,
		Parent:     parent,
		Index:      index,
		MapEntry:   md.GetOptions().GetMapEntry(),
		Deprecated: md.GetOptions().GetDeprecated(),
		Comments:   d.comments[pathKey(path)],
		byNumber:   make(map[protowire.Number]*Field),
		byName:     make(map[string]*Field),
		byJSON:     make(map[string]*Field),
	}
	if err := d.claim(m.FullName, d.file.Path); err != nil {
		return nil, err
	}
	d.schema.messages[m.FullName] = m

	for i, od := range md.GetOneofDecl() {
		m.Oneofs = append(m.Oneofs, &Oneof{
			Name:     od.GetName(),
			FullName: join(m.FullName, od.GetName()),
			Index:    i,
			Parent:   m,
		})
	}

	for i, fdp := range md.GetField() {
		f, err := d.field(m, fdp, i, sub(path, 2, int32(i)))
		if err != nil {
			return nil, err
		}
		m.Fields = append(m.Fields, f)
	}
	for _, o := range m.Oneofs {
		o.Synthetic = len(o.Fields) == 1 && o.Fields[0].Proto3Optional
	}

	for i, nd := range md.GetNestedType() {
		n, err := d.message(m, nd, i, sub(path, 3, int32(i)), m.FullName)
		if err != nil {
			return nil, err
		}
		m.Messages = append(m.Messages, n)
	}
	for i, ed := range md.GetEnumType() {
		e, err := d.enum(m, ed, sub(path, 4, int32(i)), m.FullName)
		if err != nil {
			return nil, err
		}
		m.Enums = append(m.Enums, e)
	}

	if m.MapEntry && (m.ByNumber(1) == nil || m.ByNumber(2) == nil) {
		return nil, &InvalidSchemaError{File: d.file.Path, Msg: m.FullName + " is a map entry without key and value fields"}
	}
	return m, nil
}

func (d *declarer) field(m *Message, fdp *descriptorpb.FieldDescriptorProto, index int, path []int32) (*Field, error) {
	f := &Field{
		Name:           fdp.GetName(),
		FullName:       join(m.FullName, fdp.GetName()),
		JSONName:       fdp.GetJsonName(),
		Number:         protowire.Number(fdp.GetNumber()),
		Cardinality:    Cardinality(fdp.GetLabel()),
		TypeName:       fdp.GetTypeName(),
		Parent:         m,
		Index:          index,
		Proto3Optional: fdp.GetProto3Optional(),
		Deprecated:     fdp.GetOptions().GetDeprecated(),
		Comments:       d.comments[pathKey(path)],
		desc:           fdp,
	}
	if fdp.Type != nil {
		f.Kind = kindOf(fdp.GetType())
	}
	if f.Cardinality == 0 {
		f.Cardinality = Optional
		fdp.Label = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	}
	if f.JSONName == "" {
		f.JSONName = naming.JSONName(f.Name)
		fdp.JsonName = proto.String(f.JSONName)
	}

	switch {
	case !f.Number.IsValid(), f.Number >= protowire.FirstReservedNumber && f.Number <= protowire.LastReservedNumber:
		return nil, &InvalidSchemaError{File: d.file.Path, Msg: fmt.Sprintf("%s has invalid number %d", f.FullName, f.Number)}
	case m.byNumber[f.Number] != nil:
		return nil, &InvalidSchemaError{File: d.file.Path, Msg: fmt.Sprintf("%s reuses number %d of %s", f.FullName, f.Number, m.byNumber[f.Number].Name)}
	case m.byName[f.Name] != nil:
		return nil, &InvalidSchemaError{File: d.file.Path, Msg: f.FullName + " declared twice"}
	case f.Kind == 0 && f.TypeName == "":
		return nil, &InvalidSchemaError{File: d.file.Path, Msg: f.FullName + " has no type"}
	}

	if fdp.OneofIndex != nil {
		idx := int(fdp.GetOneofIndex())
		if idx < 0 || idx >= len(m.Oneofs) {
			return nil, &InvalidSchemaError{File: d.file.Path, Msg: fmt.Sprintf("%s refers to oneof %d", f.FullName, idx)}
		}
		f.Oneof = m.Oneofs[idx]
		f.Oneof.Fields = append(f.Oneof.Fields, f)
	}

	if f.Cardinality == Repeated {
		var packed *bool
		if o := fdp.GetOptions(); o != nil {
			packed = o.Packed
		}
		if d.file.Syntax == Proto3 {
			f.packed = packed == nil || *packed
		} else {
			f.packed = packed != nil && *packed
		}
	}

	m.byNumber[f.Number] = f
	m.byName[f.Name] = f
	m.byJSON[f.JSONName] = f
	return f, nil
}

func (d *declarer) enum(parent *Message, ed *descriptorpb.EnumDescriptorProto, path []int32, scope string) (*Enum, error) {
	e := &Enum{
		Name:       ed.GetName(),
		FullName:   join(scope, ed.GetName()),
		File:       d.file,
		Parent:     parent,
		AllowAlias: ed.GetOptions().GetAllowAlias(),
		Deprecated: ed.GetOptions().GetDeprecated(),
		Comments:   d.comments[pathKey(path)],
		byNumber:   make(map[EnumNumber]*EnumValue),
		byName:     make(map[string]*EnumValue),
	}
	if err := d.claim(e.FullName, d.file.Path); err != nil {
		return nil, err
	}
	d.schema.enums[e.FullName] = e

	for i, vd := range ed.GetValue() {
		v := &EnumValue{
			Name:       vd.GetName(),
			FullName:   join(scope, vd.GetName()),
			Number:     EnumNumber(vd.GetNumber()),
			Enum:       e,
			Index:      i,
			Deprecated: vd.GetOptions().GetDeprecated(),
			Comments:   d.comments[pathKey(sub(path, 2, int32(i)))],
		}
		if e.byName[v.Name] != nil {
			return nil, &InvalidSchemaError{File: d.file.Path, Msg: v.FullName + " declared twice"}
		}
		if _, dup := e.byNumber[v.Number]; dup {
			if !e.AllowAlias {
				return nil, &InvalidSchemaError{File: d.file.Path, Msg: fmt.Sprintf("%s reuses number %d without allow_alias", v.FullName, v.Number)}
			}
		} else {
			e.byNumber[v.Number] = v
		}
		e.byName[v.Name] = v
		e.Values = append(e.Values, v)
	}
	return e, nil
}

func (d *declarer) service(sd *descriptorpb.ServiceDescriptorProto, path []int32) (*Service, error) {
	s := &Service{
		Name:       sd.GetName(),
		FullName:   join(d.file.Package, sd.GetName()),
		File:       d.file,
		Deprecated: sd.GetOptions().GetDeprecated(),
		Comments:   d.comments[pathKey(path)],
	}
	if err := d.claim(s.FullName, d.file.Path); err != nil {
		return nil, err
	}
	d.schema.services[s.FullName] = s

	for i, md := range sd.GetMethod() {
		s.Methods = append(s.Methods, &Method{
			Name:            md.GetName(),
			FullName:        join(s.FullName, md.GetName()),
			Service:         s,
			ClientStreaming: md.GetClientStreaming(),
			ServerStreaming: md.GetServerStreaming(),
			Deprecated:      md.GetOptions().GetDeprecated(),
			Comments:        d.comments[pathKey(sub(path, 2, int32(i)))],
		})
	}
	return s, nil
}

// resolve binds every type reference. All unresolved references are
// reported together.
func (l *loader) resolve() error {
	var errs error
	for _, f := range l.schema.Files {
		walkMessages(f.Messages, func(m *Message) {
			for _, fld := range m.Fields {
				errs = multierr.Append(errs, l.resolveField(f, m, fld))
			}
		})

		for i, s := range f.Services {
			sd := f.Proto.GetService()[i]
			for j, m := range s.Methods {
				md := sd.GetMethod()[j]
				var err error
				if m.Input, err = l.resolveMessage(f, s.FullName, md.GetInputType()); err == nil {
					md.InputType = proto.String("." + m.Input.FullName)
				}
				errs = multierr.Append(errs, err)
				if m.Output, err = l.resolveMessage(f, s.FullName, md.GetOutputType()); err == nil {
					md.OutputType = proto.String("." + m.Output.FullName)
				}
				errs = multierr.Append(errs, err)
			}
		}
	}
	if errs != nil {
		return errs
	}

	for _, f := range l.schema.Files {
		walkMessages(f.Messages, func(m *Message) {
			for _, fld := range m.Fields {
				fld.presence = fld.Cardinality != Repeated &&
					(fld.Kind == MessageKind || fld.Kind == GroupKind || fld.Oneof != nil || f.Syntax == Proto2)
				if !fld.Kind.Packable() {
					fld.packed = false
				}
			}
		})
	}
	return nil
}

func (l *loader) resolveField(f *File, m *Message, fld *Field) error {
	if fld.TypeName == "" {
		return nil
	}
	switch t := l.lookupRef(fld.TypeName, m.FullName).(type) {
	case *Message:
		if fld.Kind == 0 {
			fld.Kind = MessageKind
		}
		if fld.Kind != MessageKind && fld.Kind != GroupKind {
			return &InvalidSchemaError{File: f.Path, Msg: fmt.Sprintf("%s is %v but %s is a message", fld.FullName, fld.Kind, t.FullName)}
		}
		fld.Message = t
	case *Enum:
		if fld.Kind == 0 {
			fld.Kind = EnumKind
		}
		if fld.Kind != EnumKind {
			return &InvalidSchemaError{File: f.Path, Msg: fmt.Sprintf("%s is %v but %s is an enum", fld.FullName, fld.Kind, t.FullName)}
		}
		fld.Enum = t
	default:
		return &UnresolvedTypeError{File: f.Path, Scope: m.FullName, Ref: fld.TypeName}
	}

	fld.desc.Type = descriptorpb.FieldDescriptorProto_Type(fld.Kind).Enum()
	if fld.Message != nil {
		fld.desc.TypeName = proto.String("." + fld.Message.FullName)
	} else {
		fld.desc.TypeName = proto.String("." + fld.Enum.FullName)
	}
	return nil
}

func (l *loader) resolveMessage(f *File, scope, ref string) (*Message, error) {
	m, ok := l.lookupRef(ref, scope).(*Message)
	if !ok {
		return nil, &UnresolvedTypeError{File: f.Path, Scope: scope, Ref: ref}
	}
	return m, nil
}

// lookupRef applies protobuf scoping: a leading dot is fully qualified,
// otherwise the first name component is searched from the innermost scope
// outwards and the remainder is resolved inside whatever it names.
func (l *loader) lookupRef(ref, scope string) any {
	if strings.HasPrefix(ref, ".") {
		return l.lookup(ref[1:])
	}

	first, rest := ref, ""
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		first, rest = ref[:i], ref[i:]
	}
	for {
		candidate := join(scope, first)
		if t := l.lookup(candidate); t != nil {
			if rest == "" {
				return t
			}
			if r := l.lookup(candidate + rest); r != nil {
				return r
			}
			// a type shadows outer scopes even when the rest is missing
			if _, isMsg := t.(*Message); isMsg {
				return nil
			}
		} else if rest != "" && l.packages[candidate] {
			if r := l.lookup(candidate + rest); r != nil {
				return r
			}
		}
		if scope == "" {
			return nil
		}
		scope = parentScope(scope)
	}
}

func (l *loader) lookup(name string) any {
	if m, ok := l.schema.messages[name]; ok {
		return m
	}
	if e, ok := l.schema.enums[name]; ok {
		return e
	}
	return nil
}

// assignNames computes Go identifiers per package namespace. Top-level
// declarations claim first, then nested ones breadth-first, so a nested
// type never displaces a hoisted one.
func (l *loader) assignNames(c naming.Convention) error {
	for _, pkg := range l.schema.Packages() {
		var (
			files = l.schema.FilesIn(pkg)
			scope = naming.NewScope()
			queue []*Message
		)

		claim := func(ident, origin string) error {
			if prev, ok := scope.Claim(ident, origin); !ok {
				return &NameCollisionError{Name: ident, First: prev, Second: origin}
			}
			return nil
		}

		for _, f := range files {
			for _, m := range f.Messages {
				m.GoName = c.Pascal(m.Name)
				if err := claim(m.GoName, origin(f, m.FullName)); err != nil {
					return err
				}
				queue = append(queue, m)
			}
			for _, e := range f.Enums {
				e.GoName = c.Pascal(e.Name)
				if err := claim(e.GoName, origin(f, e.FullName)); err != nil {
					return err
				}
			}
			for _, s := range f.Services {
				s.GoName = c.Pascal(s.Name)
				for _, ident := range []string{s.GoName + "Client", s.GoName + "Server"} {
					if err := claim(ident, origin(f, s.FullName)); err != nil {
						return err
					}
				}
				for _, m := range s.Methods {
					m.GoName = c.Pascal(m.Name)
				}
			}
		}

		var all []*Message
		for len(queue) > 0 {
			m := queue[0]
			queue = queue[1:]
			all = append(all, m)

			for _, n := range m.Messages {
				if n.MapEntry {
					continue
				}
				ident := m.GoName + "_" + c.Pascal(n.Name)
				if scope.Taken(ident) {
					ident += naming.NestedSuffix(c, n.Enclosing())
				}
				n.GoName = ident
				if err := claim(ident, origin(n.File, n.FullName)); err != nil {
					return err
				}
				queue = append(queue, n)
			}
			for _, e := range m.Enums {
				ident := m.GoName + "_" + c.Pascal(e.Name)
				if scope.Taken(ident) {
					var chain []string
					for p := m; p != nil; p = p.Parent {
						chain = append([]string{p.Name}, chain...)
					}
					ident += naming.NestedSuffix(c, chain)
				}
				e.GoName = ident
				if err := claim(ident, origin(e.File, e.FullName)); err != nil {
					return err
				}
			}
		}

		for _, f := range files {
			var enums []*Enum
			enums = append(enums, f.Enums...)
			walkMessages(f.Messages, func(m *Message) { enums = append(enums, m.Enums...) })
			for _, e := range enums {
				for _, v := range e.Values {
					v.GoName = e.GoName + "_" + naming.Sanitize(v.Name)
					if err := claim(v.GoName, origin(f, v.FullName)); err != nil {
						return err
					}
				}
			}
		}

		for _, m := range all {
			fields := naming.NewScope(reservedIdents...)
			unique := func(ident, origin string) string {
				for {
					if _, ok := fields.Claim(ident, origin); ok {
						return ident
					}
					ident += "_"
				}
			}
			for _, f := range m.Fields {
				f.GoName = c.Pascal(f.Name)
				if f.RealOneof() == nil {
					f.GoName = unique(f.GoName, f.FullName)
					continue
				}
				wrapper := m.GoName + "_" + f.GoName
				for {
					if _, ok := scope.Claim(wrapper, origin(m.File, f.FullName)); ok {
						break
					}
					wrapper += "_"
				}
				f.WrapperName = wrapper
			}
			for _, o := range m.RealOneofs() {
				o.GoName = unique(c.Pascal(o.Name), o.FullName)
			}
		}
	}
	return nil
}

func walkMessages(msgs []*Message, fn func(*Message)) {
	for _, m := range msgs {
		fn(m)
		walkMessages(m.Messages, fn)
	}
}

func origin(f *File, fullName string) string {
	return f.Path + ":" + fullName
}

func join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func parentScope(scope string) string {
	if i := strings.LastIndexByte(scope, '.'); i >= 0 {
		return scope[:i]
	}
	return ""
}

func commentsOf(fd *descriptorpb.FileDescriptorProto) map[string]string {
	out := make(map[string]string)
	for _, loc := range fd.GetSourceCodeInfo().GetLocation() {
		if c := strings.TrimSpace(loc.GetLeadingComments()); c != "" {
			out[pathKey(loc.GetPath())] = c
		}
	}
	return out
}

// sub extends a source location path without sharing the parent's backing
// array.
func sub(path []int32, elems ...int32) []int32 {
	out := make([]int32, 0, len(path)+len(elems))
	return append(append(out, path...), elems...)
}

func pathKey(path []int32) string {
	return fmt.Sprint(path)
}
