// Package descriptor holds the immutable schema graph built from a
// FileDescriptorSet, and the Loader that builds it.
package descriptor

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/descriptorpb"
)

type File struct {
	Path      string
	Package   string
	Syntax    Syntax
	GoPackage string
	Imports   []*File

	Messages []*Message
	Enums    []*Enum
	Services []*Service

	Deprecated bool
	// Proto is a copy of the input with every type reference fully
	// qualified and json names filled in.
	Proto *descriptorpb.FileDescriptorProto
}

// Message describes one message type. Fields keep declaration order.
type Message struct {
	Name     string
	FullName string
	File     *File
	Parent   *Message
	Index    int

	Fields   []*Field
	Oneofs   []*Oneof
	Messages []*Message
	Enums    []*Enum

	MapEntry   bool
	Deprecated bool
	GoName     string
	Comments   string

	byNumber map[protowire.Number]*Field
	byName   map[string]*Field
	byJSON   map[string]*Field
}

func (m *Message) ByNumber(n protowire.Number) *Field { return m.byNumber[n] }

func (m *Message) ByName(name string) *Field { return m.byName[name] }

// ByJSONName finds a field by its json_name.
func (m *Message) ByJSONName(name string) *Field { return m.byJSON[name] }

func (m *Message) Oneof(name string) *Oneof {
	for _, o := range m.Oneofs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// RealOneofs skips the synthetic oneofs of proto3 optional fields.
func (m *Message) RealOneofs() []*Oneof {
	var out []*Oneof
	for _, o := range m.Oneofs {
		if !o.Synthetic {
			out = append(out, o)
		}
	}
	return out
}

// FieldsByNumber returns the fields sorted by field number, the order the
// wire codec emits them in.
func (m *Message) FieldsByNumber() []*Field {
	fields := append([]*Field(nil), m.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Number < fields[j].Number })
	return fields
}

// Enclosing lists the names of the messages containing m, outermost first.
func (m *Message) Enclosing() []string {
	var chain []string
	for p := m.Parent; p != nil; p = p.Parent {
		chain = append([]string{p.Name}, chain...)
	}
	return chain
}

type Field struct {
	Name        string
	FullName    string
	JSONName    string
	Number      protowire.Number
	Kind        Kind
	Cardinality Cardinality
	TypeName    string

	Message *Message
	Enum    *Enum
	Oneof   *Oneof
	Parent  *Message
	Index   int

	Proto3Optional bool
	Deprecated     bool
	GoName         string
	// WrapperName is the Go type wrapping this field inside its oneof
	// interface. Empty outside a real oneof.
	WrapperName string
	Comments    string

	packed   bool
	presence bool
	desc     *descriptorpb.FieldDescriptorProto
}

func (f *Field) IsMap() bool {
	return f.Cardinality == Repeated && f.Message != nil && f.Message.MapEntry
}

func (f *Field) IsList() bool {
	return f.Cardinality == Repeated && !f.IsMap()
}

func (f *Field) IsPacked() bool { return f.packed }

// HasPresence reports whether the field tracks set-vs-unset independently
// of its value.
func (f *Field) HasPresence() bool { return f.presence }

func (f *Field) MapKey() *Field {
	if !f.IsMap() {
		return nil
	}
	return f.Message.ByNumber(1)
}

func (f *Field) MapValue() *Field {
	if !f.IsMap() {
		return nil
	}
	return f.Message.ByNumber(2)
}

// RealOneof returns the oneof a field belongs to, ignoring synthetic ones.
func (f *Field) RealOneof() *Oneof {
	if f.Oneof == nil || f.Oneof.Synthetic {
		return nil
	}
	return f.Oneof
}

type Oneof struct {
	Name      string
	FullName  string
	Index     int
	Parent    *Message
	Fields    []*Field
	Synthetic bool
	GoName    string
}

type Enum struct {
	Name       string
	FullName   string
	File       *File
	Parent     *Message
	Values     []*EnumValue
	AllowAlias bool
	Deprecated bool
	GoName     string
	Comments   string

	byNumber map[EnumNumber]*EnumValue
	byName   map[string]*EnumValue
}

// ByNumber returns the first declared value with number n.
func (e *Enum) ByNumber(n EnumNumber) *EnumValue { return e.byNumber[n] }

func (e *Enum) ByName(name string) *EnumValue { return e.byName[name] }

// Default is the value numbered 0, or the first one declared when the
// enum has no zero.
func (e *Enum) Default() EnumNumber {
	if _, ok := e.byNumber[0]; ok || len(e.Values) == 0 {
		return 0
	}
	return e.Values[0].Number
}

type EnumValue struct {
	Name       string
	FullName   string
	Number     EnumNumber
	Enum       *Enum
	Index      int
	Deprecated bool
	GoName     string
	Comments   string
}

type Service struct {
	Name       string
	FullName   string
	File       *File
	Methods    []*Method
	Deprecated bool
	GoName     string
	Comments   string
}

// MethodCardinality classifies a method by which sides stream.
type MethodCardinality int

const (
	UnaryUnary MethodCardinality = iota
	UnaryStream
	StreamUnary
	StreamStream
)

func (c MethodCardinality) String() string {
	switch c {
	case UnaryUnary:
		return "unary-unary"
	case UnaryStream:
		return "unary-stream"
	case StreamUnary:
		return "stream-unary"
	}
	return "stream-stream"
}

type Method struct {
	Name            string
	FullName        string
	Service         *Service
	Input           *Message
	Output          *Message
	ClientStreaming bool
	ServerStreaming bool
	Deprecated      bool
	GoName          string
	Comments        string
}

func (m *Method) Cardinality() MethodCardinality {
	switch {
	case m.ClientStreaming && m.ServerStreaming:
		return StreamStream
	case m.ClientStreaming:
		return StreamUnary
	case m.ServerStreaming:
		return UnaryStream
	}
	return UnaryUnary
}

// Path is the gRPC method path, "/pkg.Service/Method".
func (m *Method) Path() string {
	return "/" + m.Service.FullName + "/" + m.Name
}

// Schema is the resolved graph of a set of files keyed by fully-qualified
// name. Files are in import order: every file follows its dependencies.
type Schema struct {
	Files []*File

	byPath   map[string]*File
	messages map[string]*Message
	enums    map[string]*Enum
	services map[string]*Service
}

func (s *Schema) File(path string) *File { return s.byPath[path] }

// Message looks up a message by fully-qualified name, with or without a
// leading dot.
func (s *Schema) Message(name string) *Message { return s.messages[trimDot(name)] }

func (s *Schema) Enum(name string) *Enum { return s.enums[trimDot(name)] }

func (s *Schema) Service(name string) *Service { return s.services[trimDot(name)] }

// Messages returns every message in the schema, including nested and map
// entry types, sorted by full name.
func (s *Schema) Messages() []*Message {
	out := make([]*Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// Packages lists the distinct packages in file order. Package-less files
// contribute the empty string.
func (s *Schema) Packages() []string {
	var (
		seen = make(map[string]bool)
		out  []string
	)
	for _, f := range s.Files {
		if !seen[f.Package] {
			seen[f.Package] = true
			out = append(out, f.Package)
		}
	}
	return out
}

// FilesIn returns the files declaring pkg, in file order.
func (s *Schema) FilesIn(pkg string) []*File {
	var out []*File
	for _, f := range s.Files {
		if f.Package == pkg {
			out = append(out, f)
		}
	}
	return out
}

// Resolver is satisfied by *Schema and is what the JSON mapper uses to find
// the payload type of an Any.
type Resolver interface {
	Message(name string) *Message
}

func trimDot(name string) string {
	if len(name) > 0 && name[0] == '.' {
		return name[1:]
	}
	return name
}
