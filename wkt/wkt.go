// Package wkt holds the table of well-known types: which messages get a
// special JSON form, which map to native Go types in generated code, and
// the schema files that define them.
package wkt

import (
	"strings"
	"sync"

	"github.com/hysios/protomx/descriptor"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Kind int

const (
	None Kind = iota
	Timestamp
	Duration
	Wrapper
	Struct
	Value
	ListValue
	Any
	Empty
	FieldMask
)

const (
	TimestampName = "google.protobuf.Timestamp"
	DurationName  = "google.protobuf.Duration"
	StructName    = "google.protobuf.Struct"
	ValueName     = "google.protobuf.Value"
	ListValueName = "google.protobuf.ListValue"
	NullValueName = "google.protobuf.NullValue"
	AnyName       = "google.protobuf.Any"
	EmptyName     = "google.protobuf.Empty"
	FieldMaskName = "google.protobuf.FieldMask"

	TypeURLPrefix = "type.googleapis.com/"
)

// Entry describes one well-known message.
type Entry struct {
	Name string
	Kind Kind
	// GoType is the native type generated code uses for a field of this
	// message, held by pointer so absence survives. Empty when the message
	// is used as is.
	GoType   string
	GoImport string
}

// Table is built once by the caller and passed to the JSON mapper and the
// generator.
type Table struct {
	entries map[string]*Entry

	once   sync.Once
	schema *descriptor.Schema
}

func wrapper(name, goType string) *Entry {
	return &Entry{Name: "google.protobuf." + name, Kind: Wrapper, GoType: goType}
}

// Standard returns the table of the types shipped with protobuf.
func Standard() *Table {
	t := &Table{entries: make(map[string]*Entry)}
	for _, e := range []*Entry{
		{Name: TimestampName, Kind: Timestamp, GoType: "time.Time", GoImport: "time"},
		{Name: DurationName, Kind: Duration, GoType: "time.Duration", GoImport: "time"},
		wrapper("DoubleValue", "float64"),
		wrapper("FloatValue", "float32"),
		wrapper("Int64Value", "int64"),
		wrapper("UInt64Value", "uint64"),
		wrapper("Int32Value", "int32"),
		wrapper("UInt32Value", "uint32"),
		wrapper("BoolValue", "bool"),
		wrapper("StringValue", "string"),
		wrapper("BytesValue", "[]byte"),
		{Name: StructName, Kind: Struct},
		{Name: ValueName, Kind: Value},
		{Name: ListValueName, Kind: ListValue},
		{Name: AnyName, Kind: Any},
		{Name: EmptyName, Kind: Empty},
		{Name: FieldMaskName, Kind: FieldMask},
	} {
		t.entries[e.Name] = e
	}
	return t
}

// Lookup returns the entry of a fully-qualified message name.
func (t *Table) Lookup(name string) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.entries[strings.TrimPrefix(name, ".")]
	return e, ok
}

func (t *Table) Kind(name string) Kind {
	if e, ok := t.Lookup(name); ok {
		return e.Kind
	}
	return None
}

// Schema loads the well-known files on first use.
func (t *Table) Schema() *descriptor.Schema {
	t.once.Do(func() {
		s, err := descriptor.LoadFiles(FileProtos())
		if err != nil {
			panic("wkt: load well-known files: " + err.Error())
		}
		t.schema = s
	})
	return t.schema
}

// Message resolves a well-known message descriptor by name.
func (t *Table) Message(name string) *descriptor.Message {
	return t.Schema().Message(name)
}

var files = []protoreflect.FileDescriptor{
	timestamppb.File_google_protobuf_timestamp_proto,
	durationpb.File_google_protobuf_duration_proto,
	wrapperspb.File_google_protobuf_wrappers_proto,
	structpb.File_google_protobuf_struct_proto,
	anypb.File_google_protobuf_any_proto,
	emptypb.File_google_protobuf_empty_proto,
	fieldmaskpb.File_google_protobuf_field_mask_proto,
}

// FileProtos returns fresh copies of the well-known schema files, suitable
// for descriptor.WithFallback or for bundling into generated output.
func FileProtos() []*descriptorpb.FileDescriptorProto {
	out := make([]*descriptorpb.FileDescriptorProto, 0, len(files))
	for _, fd := range files {
		out = append(out, protodesc.ToFileDescriptorProto(fd))
	}
	return out
}

// IsWellKnownFile reports whether path is one of FileProtos.
func IsWellKnownFile(path string) bool {
	for _, fd := range files {
		if fd.Path() == path {
			return true
		}
	}
	return false
}

// TypeURL is the Any type URL of a message name.
func TypeURL(fullName string) string {
	return TypeURLPrefix + fullName
}

// MessageName extracts the message name from an Any type URL.
func MessageName(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
