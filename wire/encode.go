// Package wire encodes dynamic messages to and from the protobuf binary
// format.
package wire

import (
	"math"
	"unicode/utf8"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes m. Known fields are written in field number order,
// unknown bytes follow unchanged.
func Marshal(m *dynamic.Message) ([]byte, error) {
	return appendMessage(make([]byte, 0, Size(m)), m)
}

func appendMessage(b []byte, m *dynamic.Message) ([]byte, error) {
	var err error
	m.Range(func(f *descriptor.Field, v dynamic.Value) bool {
		b, err = appendField(b, f, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return append(b, m.Unknown()...), nil
}

func appendField(b []byte, f *descriptor.Field, v dynamic.Value) ([]byte, error) {
	if f.Kind == descriptor.GroupKind {
		return b, nil
	}

	var err error
	switch {
	case f.IsMap():
		key, val := f.MapKey(), f.MapValue()
		v.Map().Range(func(k, mv dynamic.Value) bool {
			b = protowire.AppendTag(b, f.Number, protowire.BytesType)
			b = protowire.AppendVarint(b, uint64(sizeEntry(key, val, k, mv)))
			if b, err = appendSingular(b, key, k); err != nil {
				return false
			}
			b, err = appendSingular(b, val, entryValue(val, mv))
			return err == nil
		})
		return b, err

	case f.IsList():
		l := v.List()
		if f.IsPacked() {
			b = protowire.AppendTag(b, f.Number, protowire.BytesType)
			b = protowire.AppendVarint(b, uint64(sizePacked(f.Kind, l)))
			for i := 0; i < l.Len(); i++ {
				b = appendScalar(b, f.Kind, l.Get(i))
			}
			return b, nil
		}
		for i := 0; i < l.Len(); i++ {
			if b, err = appendSingular(b, f, l.Get(i)); err != nil {
				return nil, err
			}
		}
		return b, nil
	}
	return appendSingular(b, f, v)
}

// appendSingular writes one tagged value.
func appendSingular(b []byte, f *descriptor.Field, v dynamic.Value) ([]byte, error) {
	switch f.Kind {
	case descriptor.MessageKind:
		b = protowire.AppendTag(b, f.Number, protowire.BytesType)
		sub := v.Message()
		b = protowire.AppendVarint(b, uint64(Size(sub)))
		return appendMessage(b, sub)
	case descriptor.StringKind:
		if !utf8.ValidString(v.String()) {
			return nil, errors.Errorf("wire: %s: string is not valid UTF-8", f.FullName)
		}
	}
	b = protowire.AppendTag(b, f.Number, f.Kind.WireType())
	return appendScalar(b, f.Kind, v), nil
}

func appendScalar(b []byte, k descriptor.Kind, v dynamic.Value) []byte {
	switch k {
	case descriptor.BoolKind:
		return protowire.AppendVarint(b, protowire.EncodeBool(v.Bool()))
	case descriptor.EnumKind:
		return protowire.AppendVarint(b, uint64(int64(v.Enum())))
	case descriptor.Int32Kind, descriptor.Int64Kind:
		return protowire.AppendVarint(b, uint64(v.Int()))
	case descriptor.Uint32Kind, descriptor.Uint64Kind:
		return protowire.AppendVarint(b, v.Uint())
	case descriptor.Sint32Kind, descriptor.Sint64Kind:
		return protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int()))
	case descriptor.Fixed32Kind:
		return protowire.AppendFixed32(b, uint32(v.Uint()))
	case descriptor.Sfixed32Kind:
		return protowire.AppendFixed32(b, uint32(v.Int()))
	case descriptor.FloatKind:
		return protowire.AppendFixed32(b, math.Float32bits(float32(v.Float())))
	case descriptor.Fixed64Kind:
		return protowire.AppendFixed64(b, v.Uint())
	case descriptor.Sfixed64Kind:
		return protowire.AppendFixed64(b, uint64(v.Int()))
	case descriptor.DoubleKind:
		return protowire.AppendFixed64(b, math.Float64bits(v.Float()))
	case descriptor.StringKind:
		return protowire.AppendString(b, v.String())
	case descriptor.BytesKind:
		return protowire.AppendBytes(b, v.Bytes())
	}
	panic("wire: cannot append " + k.String())
}

// entryValue substitutes an empty message for an absent map value so the
// entry still carries field 2.
func entryValue(f *descriptor.Field, v dynamic.Value) dynamic.Value {
	if f.Kind == descriptor.MessageKind && v.Message() == nil {
		return dynamic.ValueOfMessage(dynamic.New(f.Message))
	}
	return v
}

// Size is the encoded length of m.
func Size(m *dynamic.Message) int {
	if m == nil {
		return 0
	}
	n := 0
	m.Range(func(f *descriptor.Field, v dynamic.Value) bool {
		n += sizeField(f, v)
		return true
	})
	return n + len(m.Unknown())
}

func sizeField(f *descriptor.Field, v dynamic.Value) int {
	if f.Kind == descriptor.GroupKind {
		return 0
	}
	tag := protowire.SizeTag(f.Number)

	switch {
	case f.IsMap():
		n := 0
		key, val := f.MapKey(), f.MapValue()
		v.Map().Range(func(k, mv dynamic.Value) bool {
			n += tag + protowire.SizeBytes(sizeEntry(key, val, k, mv))
			return true
		})
		return n

	case f.IsList():
		l := v.List()
		if f.IsPacked() {
			return tag + protowire.SizeBytes(sizePacked(f.Kind, l))
		}
		n := 0
		for i := 0; i < l.Len(); i++ {
			n += sizeSingular(f, l.Get(i))
		}
		return n
	}
	return sizeSingular(f, v)
}

func sizeSingular(f *descriptor.Field, v dynamic.Value) int {
	tag := protowire.SizeTag(f.Number)
	if f.Kind == descriptor.MessageKind {
		return tag + protowire.SizeBytes(Size(v.Message()))
	}
	return tag + sizeScalar(f.Kind, v)
}

func sizeEntry(key, val *descriptor.Field, k, v dynamic.Value) int {
	return sizeSingular(key, k) + sizeSingular(val, entryValue(val, v))
}

func sizePacked(k descriptor.Kind, l *dynamic.List) int {
	n := 0
	for i := 0; i < l.Len(); i++ {
		n += sizeScalar(k, l.Get(i))
	}
	return n
}

func sizeScalar(k descriptor.Kind, v dynamic.Value) int {
	switch k {
	case descriptor.BoolKind:
		return 1
	case descriptor.EnumKind:
		return protowire.SizeVarint(uint64(int64(v.Enum())))
	case descriptor.Int32Kind, descriptor.Int64Kind:
		return protowire.SizeVarint(uint64(v.Int()))
	case descriptor.Uint32Kind, descriptor.Uint64Kind:
		return protowire.SizeVarint(v.Uint())
	case descriptor.Sint32Kind, descriptor.Sint64Kind:
		return protowire.SizeVarint(protowire.EncodeZigZag(v.Int()))
	case descriptor.Fixed32Kind, descriptor.Sfixed32Kind, descriptor.FloatKind:
		return protowire.SizeFixed32()
	case descriptor.Fixed64Kind, descriptor.Sfixed64Kind, descriptor.DoubleKind:
		return protowire.SizeFixed64()
	case descriptor.StringKind:
		return protowire.SizeBytes(len(v.String()))
	case descriptor.BytesKind:
		return protowire.SizeBytes(len(v.Bytes()))
	}
	panic("wire: cannot size " + k.String())
}
