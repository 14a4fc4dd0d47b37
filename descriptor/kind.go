package descriptor

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Kind is the logical type of a field. Values match
// descriptorpb.FieldDescriptorProto_Type.
type Kind int32

const (
	DoubleKind   Kind = 1
	FloatKind    Kind = 2
	Int64Kind    Kind = 3
	Uint64Kind   Kind = 4
	Int32Kind    Kind = 5
	Fixed64Kind  Kind = 6
	Fixed32Kind  Kind = 7
	BoolKind     Kind = 8
	StringKind   Kind = 9
	GroupKind    Kind = 10
	MessageKind  Kind = 11
	BytesKind    Kind = 12
	Uint32Kind   Kind = 13
	EnumKind     Kind = 14
	Sfixed32Kind Kind = 15
	Sfixed64Kind Kind = 16
	Sint32Kind   Kind = 17
	Sint64Kind   Kind = 18
)

var kindNames = map[Kind]string{
	DoubleKind:   "double",
	FloatKind:    "float",
	Int64Kind:    "int64",
	Uint64Kind:   "uint64",
	Int32Kind:    "int32",
	Fixed64Kind:  "fixed64",
	Fixed32Kind:  "fixed32",
	BoolKind:     "bool",
	StringKind:   "string",
	GroupKind:    "group",
	MessageKind:  "message",
	BytesKind:    "bytes",
	Uint32Kind:   "uint32",
	EnumKind:     "enum",
	Sfixed32Kind: "sfixed32",
	Sfixed64Kind: "sfixed64",
	Sint32Kind:   "sint32",
	Sint64Kind:   "sint64",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// ScalarKind looks up a scalar type keyword as written in a .proto file.
func ScalarKind(name string) (Kind, bool) {
	for k, s := range kindNames {
		if s == name && k != GroupKind && k != MessageKind && k != EnumKind {
			return k, true
		}
	}
	return 0, false
}

func kindOf(t descriptorpb.FieldDescriptorProto_Type) Kind {
	return Kind(t)
}

// Encoding is the wire category of a kind.
type Encoding int

const (
	Varint Encoding = iota
	ZigZag
	Fixed32
	Fixed64
	LengthDelimited
	Group
)

func (k Kind) Encoding() Encoding {
	switch k {
	case BoolKind, EnumKind, Int32Kind, Int64Kind, Uint32Kind, Uint64Kind:
		return Varint
	case Sint32Kind, Sint64Kind:
		return ZigZag
	case Fixed32Kind, Sfixed32Kind, FloatKind:
		return Fixed32
	case Fixed64Kind, Sfixed64Kind, DoubleKind:
		return Fixed64
	case StringKind, BytesKind, MessageKind:
		return LengthDelimited
	case GroupKind:
		return Group
	}
	panic(fmt.Sprintf("descriptor: invalid kind %v", k))
}

// WireType is the wire type a single value of kind k is framed with.
func (k Kind) WireType() protowire.Type {
	switch k.Encoding() {
	case Varint, ZigZag:
		return protowire.VarintType
	case Fixed32:
		return protowire.Fixed32Type
	case Fixed64:
		return protowire.Fixed64Type
	case Group:
		return protowire.StartGroupType
	}
	return protowire.BytesType
}

// Packable reports whether repeated values of kind k may share one
// length-delimited record.
func (k Kind) Packable() bool {
	switch k.Encoding() {
	case Varint, ZigZag, Fixed32, Fixed64:
		return true
	}
	return false
}

// Is64 reports whether k is a 64-bit integer kind, rendered as a string in
// JSON.
func (k Kind) Is64() bool {
	switch k {
	case Int64Kind, Uint64Kind, Sint64Kind, Fixed64Kind, Sfixed64Kind:
		return true
	}
	return false
}

// Cardinality mirrors the field label.
type Cardinality int32

const (
	Optional Cardinality = 1
	Required Cardinality = 2
	Repeated Cardinality = 3
)

func (c Cardinality) String() string {
	switch c {
	case Optional:
		return "optional"
	case Required:
		return "required"
	case Repeated:
		return "repeated"
	}
	return fmt.Sprintf("Cardinality(%d)", int32(c))
}

// Syntax of a schema file.
type Syntax string

const (
	Proto2 Syntax = "proto2"
	Proto3 Syntax = "proto3"
)

// EnumNumber is the numeric value of an enum constant.
type EnumNumber int32
