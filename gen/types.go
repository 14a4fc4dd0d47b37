package gen

import (
	"fmt"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/wkt"
)

// class says how a field's values are held in Go.
type class int

const (
	scalarClass class = iota
	enumClass
	// messageClass is a generated struct, held by pointer.
	messageClass
	// nativeClass is a well-known message mapped onto a Go type.
	nativeClass
	// dynamicClass is a well-known message kept as a *dynamic.Message.
	dynamicClass
)

func (u *unit) classify(f *descriptor.Field) (class, *wkt.Entry) {
	switch f.Kind {
	case descriptor.EnumKind:
		return enumClass, nil
	case descriptor.MessageKind:
		if e, ok := u.g.wellKnown(f.Message); ok {
			if e.GoType != "" {
				return nativeClass, e
			}
			return dynamicClass, e
		}
		return messageClass, nil
	}
	return scalarClass, nil
}

func skipField(f *descriptor.Field) bool {
	return f.Kind == descriptor.GroupKind
}

var scalarTypes = map[descriptor.Kind]string{
	descriptor.DoubleKind:   "float64",
	descriptor.FloatKind:    "float32",
	descriptor.Int64Kind:    "int64",
	descriptor.Uint64Kind:   "uint64",
	descriptor.Int32Kind:    "int32",
	descriptor.Fixed64Kind:  "uint64",
	descriptor.Fixed32Kind:  "uint32",
	descriptor.BoolKind:     "bool",
	descriptor.StringKind:   "string",
	descriptor.BytesKind:    "[]byte",
	descriptor.Uint32Kind:   "uint32",
	descriptor.Sfixed32Kind: "int32",
	descriptor.Sfixed64Kind: "int64",
	descriptor.Sint32Kind:   "int32",
	descriptor.Sint64Kind:   "int64",
}

var valueCtors = map[descriptor.Kind]string{
	descriptor.DoubleKind:   "ValueOfFloat64",
	descriptor.FloatKind:    "ValueOfFloat32",
	descriptor.Int64Kind:    "ValueOfInt64",
	descriptor.Uint64Kind:   "ValueOfUint64",
	descriptor.Int32Kind:    "ValueOfInt32",
	descriptor.Fixed64Kind:  "ValueOfUint64",
	descriptor.Fixed32Kind:  "ValueOfUint32",
	descriptor.BoolKind:     "ValueOfBool",
	descriptor.StringKind:   "ValueOfString",
	descriptor.BytesKind:    "ValueOfBytes",
	descriptor.Uint32Kind:   "ValueOfUint32",
	descriptor.Sfixed32Kind: "ValueOfInt32",
	descriptor.Sfixed64Kind: "ValueOfInt64",
	descriptor.Sint32Kind:   "ValueOfInt32",
	descriptor.Sint64Kind:   "ValueOfInt64",
}

// enumType is the Go type of an enum. Well-known enums that are not
// generated, such as NullValue, stay plain numbers.
func (u *unit) enumType(e *descriptor.Enum) string {
	if _, ok := u.g.unitOf[e.File.Path]; !ok && wkt.IsWellKnownFile(e.File.Path) {
		return "int32"
	}
	return u.qualify(e.File, e.GoName)
}

// isGeneratedEnum reports whether values of e have a Descriptor method.
func (u *unit) isGeneratedEnum(e *descriptor.Enum) bool {
	return u.enumType(e) != "int32"
}

func (u *unit) messageType(m *descriptor.Message) string {
	return u.qualify(m.File, m.GoName)
}

// elemType is the Go type of one value of f: a list element, a map value
// or a oneof member.
func (u *unit) elemType(f *descriptor.Field) string {
	c, e := u.classify(f)
	switch c {
	case enumClass:
		return u.enumType(f.Enum)
	case messageClass:
		return "*" + u.messageType(f.Message)
	case nativeClass:
		if e.GoImport != "" {
			u.use(e.GoImport)
		}
		return e.GoType
	case dynamicClass:
		return "*" + u.use(dynamicPkg) + ".Message"
	}
	return scalarTypes[f.Kind]
}

// pointerScalar reports whether a singular field is held by pointer to
// track presence. Bytes use nil instead.
func (u *unit) pointerScalar(f *descriptor.Field) bool {
	if f.Cardinality == descriptor.Repeated || f.RealOneof() != nil || f.Kind == descriptor.BytesKind {
		return false
	}
	c, _ := u.classify(f)
	return (c == scalarClass || c == enumClass) && f.HasPresence()
}

func (u *unit) fieldType(f *descriptor.Field) string {
	switch {
	case f.IsMap():
		return "map[" + u.elemType(f.MapKey()) + "]" + u.elemType(f.MapValue())
	case f.IsList():
		return "[]" + u.elemType(f)
	}
	c, _ := u.classify(f)
	switch {
	case c == nativeClass:
		return "*" + u.elemType(f)
	case f.Kind == descriptor.BytesKind:
		return "[]byte"
	case u.pointerScalar(f):
		return "*" + u.elemType(f)
	}
	return u.elemType(f)
}

// toValue converts the Go expression x holding one value of f into a
// dynamic.Value. fexpr evaluates to f's descriptor.
func (u *unit) toValue(f *descriptor.Field, fexpr, x string) string {
	dyn := u.use(dynamicPkg)
	c, e := u.classify(f)
	switch c {
	case enumClass:
		return fmt.Sprintf("%s.ValueOfEnum(%s.EnumNumber(%s))", dyn, u.use(descriptorPkg), x)
	case messageClass:
		return fmt.Sprintf("%s.ValueOfMessage(%s.ToDynamic())", dyn, x)
	case dynamicClass:
		return fmt.Sprintf("%s.ValueOfMessage(%s)", dyn, x)
	case nativeClass:
		w := u.use(wktPkg)
		switch e.Kind {
		case wkt.Timestamp:
			return fmt.Sprintf("%s.ValueOfMessage(%s.FromTime(%s.Message, %s))", dyn, w, fexpr, x)
		case wkt.Duration:
			return fmt.Sprintf("%s.ValueOfMessage(%s.FromDuration(%s.Message, %s))", dyn, w, fexpr, x)
		}
		inner := f.Message.ByNumber(1).Kind
		return fmt.Sprintf("%s.ValueOfMessage(%s.Wrap(%s.Message, %s.%s(%s)))", dyn, w, fexpr, dyn, valueCtors[inner], x)
	}
	return fmt.Sprintf("%s.%s(%s)", dyn, valueCtors[f.Kind], x)
}

// fromValue converts the dynamic.Value expression v into one Go value of
// f. Generated messages need an error check and are handled by callers.
func (u *unit) fromValue(f *descriptor.Field, v string) string {
	c, e := u.classify(f)
	switch c {
	case enumClass:
		return fmt.Sprintf("%s(%s.Enum())", u.enumType(f.Enum), v)
	case dynamicClass:
		return v + ".Message().Clone()"
	case nativeClass:
		w := u.use(wktPkg)
		switch e.Kind {
		case wkt.Timestamp:
			return fmt.Sprintf("%s.ToTime(%s.Message())", w, v)
		case wkt.Duration:
			return fmt.Sprintf("%s.ToDuration(%s.Message())", w, v)
		}
		return scalarFrom(f.Message.ByNumber(1).Kind, fmt.Sprintf("%s.Unwrap(%s.Message())", w, v))
	}
	return scalarFrom(f.Kind, v)
}

func scalarFrom(k descriptor.Kind, v string) string {
	switch k {
	case descriptor.Int32Kind, descriptor.Sint32Kind, descriptor.Sfixed32Kind:
		return "int32(" + v + ".Int())"
	case descriptor.Int64Kind, descriptor.Sint64Kind, descriptor.Sfixed64Kind:
		return v + ".Int()"
	case descriptor.Uint32Kind, descriptor.Fixed32Kind:
		return "uint32(" + v + ".Uint())"
	case descriptor.Uint64Kind, descriptor.Fixed64Kind:
		return v + ".Uint()"
	case descriptor.FloatKind:
		return "float32(" + v + ".Float())"
	case descriptor.DoubleKind:
		return v + ".Float()"
	case descriptor.BoolKind:
		return v + ".Bool()"
	case descriptor.StringKind:
		return v + ".String()"
	case descriptor.BytesKind:
		return v + ".Bytes()"
	}
	panic(fmt.Sprintf("gen: no Go conversion for %v", k))
}

// convert is the generic call building a generated message from a
// dynamic.Message expression.
func (u *unit) convert(f *descriptor.Field, m string) string {
	return fmt.Sprintf("%s.Convert[%s](%s)", u.use(protomxPkg), u.messageType(f.Message), m)
}
