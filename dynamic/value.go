// Package dynamic is a descriptor-driven message container. It holds any
// message of a loaded schema, without generated code.
package dynamic

import (
	"fmt"
	"math"

	"github.com/hysios/protomx/descriptor"
)

// Value is one field value. The zero Value is invalid and stands for
// "absent".
type Value struct {
	v any
}

func ValueOfInt32(v int32) Value                { return Value{v} }
func ValueOfInt64(v int64) Value                { return Value{v} }
func ValueOfUint32(v uint32) Value              { return Value{v} }
func ValueOfUint64(v uint64) Value              { return Value{v} }
func ValueOfFloat32(v float32) Value            { return Value{v} }
func ValueOfFloat64(v float64) Value            { return Value{v} }
func ValueOfBool(v bool) Value                  { return Value{v} }
func ValueOfString(v string) Value              { return Value{v} }
func ValueOfBytes(v []byte) Value               { return Value{v} }
func ValueOfEnum(v descriptor.EnumNumber) Value { return Value{v} }
func ValueOfMessage(v *Message) Value           { return valueOfPtr(v) }
func ValueOfList(v *List) Value                 { return valueOfPtr(v) }
func ValueOfMap(v *Map) Value                   { return valueOfPtr(v) }

func valueOfPtr[T any](p *T) Value {
	if p == nil {
		return Value{}
	}
	return Value{p}
}

// ValueOf wraps a Go value of one of the types the constructors accept.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case nil:
		return Value{}
	case int32, int64, uint32, uint64, float32, float64, bool, string, []byte, descriptor.EnumNumber:
		return Value{v}
	case *Message:
		return ValueOfMessage(v)
	case *List:
		return ValueOfList(v)
	case *Map:
		return ValueOfMap(v)
	}
	panic(fmt.Sprintf("dynamic: invalid value type %T", v))
}

func (v Value) IsValid() bool { return v.v != nil }

func (v Value) Interface() any { return v.v }

// Int returns a signed integer value.
func (v Value) Int() int64 {
	switch x := v.v.(type) {
	case int32:
		return int64(x)
	case int64:
		return x
	case descriptor.EnumNumber:
		return int64(x)
	}
	panic(v.mismatch("int"))
}

func (v Value) Uint() uint64 {
	switch x := v.v.(type) {
	case uint32:
		return uint64(x)
	case uint64:
		return x
	}
	panic(v.mismatch("uint"))
}

func (v Value) Float() float64 {
	switch x := v.v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	}
	panic(v.mismatch("float"))
}

func (v Value) Bool() bool {
	if x, ok := v.v.(bool); ok {
		return x
	}
	panic(v.mismatch("bool"))
}

// String returns the string value, or a debug rendering for other kinds.
func (v Value) String() string {
	if x, ok := v.v.(string); ok {
		return x
	}
	return fmt.Sprint(v.v)
}

func (v Value) Bytes() []byte {
	if x, ok := v.v.([]byte); ok {
		return x
	}
	panic(v.mismatch("bytes"))
}

func (v Value) Enum() descriptor.EnumNumber {
	if x, ok := v.v.(descriptor.EnumNumber); ok {
		return x
	}
	panic(v.mismatch("enum"))
}

// Message returns the message value, nil when v is invalid.
func (v Value) Message() *Message {
	switch x := v.v.(type) {
	case nil:
		return nil
	case *Message:
		return x
	}
	panic(v.mismatch("message"))
}

func (v Value) List() *List {
	switch x := v.v.(type) {
	case nil:
		return nil
	case *List:
		return x
	}
	panic(v.mismatch("list"))
}

func (v Value) Map() *Map {
	switch x := v.v.(type) {
	case nil:
		return nil
	case *Map:
		return x
	}
	panic(v.mismatch("map"))
}

func (v Value) mismatch(want string) string {
	return fmt.Sprintf("dynamic: %T is not %s", v.v, want)
}

// isZero reports whether a scalar holds its kind's default.
func (v Value) isZero() bool {
	switch x := v.v.(type) {
	case nil:
		return true
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint32:
		return x == 0
	case uint64:
		return x == 0
	case float32:
		return x == 0 && !math.Signbit(float64(x))
	case float64:
		return x == 0 && !math.Signbit(x)
	case bool:
		return !x
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case descriptor.EnumNumber:
		return x == 0
	case *List:
		return x.Len() == 0
	case *Map:
		return x.Len() == 0
	}
	return false
}

// Zero returns the default of a single value of f. Message kinds have no
// default instance and yield an invalid Value.
func Zero(f *descriptor.Field) Value {
	switch f.Kind {
	case descriptor.Int32Kind, descriptor.Sint32Kind, descriptor.Sfixed32Kind:
		return ValueOfInt32(0)
	case descriptor.Int64Kind, descriptor.Sint64Kind, descriptor.Sfixed64Kind:
		return ValueOfInt64(0)
	case descriptor.Uint32Kind, descriptor.Fixed32Kind:
		return ValueOfUint32(0)
	case descriptor.Uint64Kind, descriptor.Fixed64Kind:
		return ValueOfUint64(0)
	case descriptor.FloatKind:
		return ValueOfFloat32(0)
	case descriptor.DoubleKind:
		return ValueOfFloat64(0)
	case descriptor.BoolKind:
		return ValueOfBool(false)
	case descriptor.StringKind:
		return ValueOfString("")
	case descriptor.BytesKind:
		return ValueOfBytes(nil)
	case descriptor.EnumKind:
		if f.Enum != nil {
			return ValueOfEnum(f.Enum.Default())
		}
		return ValueOfEnum(0)
	}
	return Value{}
}

// checkScalar panics unless v has the Go type f's kind is held as.
func checkScalar(f *descriptor.Field, v Value) {
	ok := false
	switch v.v.(type) {
	case int32:
		ok = f.Kind == descriptor.Int32Kind || f.Kind == descriptor.Sint32Kind || f.Kind == descriptor.Sfixed32Kind
	case int64:
		ok = f.Kind == descriptor.Int64Kind || f.Kind == descriptor.Sint64Kind || f.Kind == descriptor.Sfixed64Kind
	case uint32:
		ok = f.Kind == descriptor.Uint32Kind || f.Kind == descriptor.Fixed32Kind
	case uint64:
		ok = f.Kind == descriptor.Uint64Kind || f.Kind == descriptor.Fixed64Kind
	case float32:
		ok = f.Kind == descriptor.FloatKind
	case float64:
		ok = f.Kind == descriptor.DoubleKind
	case bool:
		ok = f.Kind == descriptor.BoolKind
	case string:
		ok = f.Kind == descriptor.StringKind
	case []byte:
		ok = f.Kind == descriptor.BytesKind
	case descriptor.EnumNumber:
		ok = f.Kind == descriptor.EnumKind
	case *Message:
		m := v.v.(*Message)
		ok = (f.Kind == descriptor.MessageKind || f.Kind == descriptor.GroupKind) && sameType(m.desc, f.Message)
	}
	if !ok {
		panic(fmt.Sprintf("dynamic: %T is not valid for %s (%v)", v.v, f.FullName, f.Kind))
	}
}

func sameType(a, b *descriptor.Message) bool {
	return a == b || (a != nil && b != nil && a.FullName == b.FullName)
}

// equalValue compares two values of the same field. NaN equals NaN.
func equalValue(a, b Value) bool {
	switch x := a.v.(type) {
	case float32:
		y, ok := b.v.(float32)
		return ok && (x == y || (x != x && y != y))
	case float64:
		y, ok := b.v.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	case []byte:
		y, ok := b.v.([]byte)
		return ok && string(x) == string(y)
	case *Message:
		return Equal(x, b.Message())
	case *List:
		return equalList(x, b.List())
	case *Map:
		return equalMap(x, b.Map())
	case nil:
		return b.v == nil
	}
	return a.v == b.v
}

func cloneValue(v Value) Value {
	switch x := v.v.(type) {
	case []byte:
		if x == nil {
			return v
		}
		return ValueOfBytes(append([]byte{}, x...))
	case *Message:
		return ValueOfMessage(x.Clone())
	case *List:
		return ValueOfList(x.clone())
	case *Map:
		return ValueOfMap(x.clone())
	}
	return v
}
