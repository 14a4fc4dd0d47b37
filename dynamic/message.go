package dynamic

import (
	"fmt"

	"github.com/hysios/protomx/descriptor"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is an instance of a descriptor.Message. It is owned by its
// caller and not safe for concurrent mutation.
type Message struct {
	desc    *descriptor.Message
	fields  map[protowire.Number]Value
	unknown []byte
}

func New(desc *descriptor.Message) *Message {
	return &Message{
		desc:   desc,
		fields: make(map[protowire.Number]Value),
	}
}

func (m *Message) Descriptor() *descriptor.Message { return m.desc }

func (m *Message) field(f *descriptor.Field) *descriptor.Field {
	if f.Parent != m.desc && (f.Parent == nil || f.Parent.FullName != m.desc.FullName) {
		panic(fmt.Sprintf("dynamic: field %s does not belong to %s", f.FullName, m.desc.FullName))
	}
	return f
}

// Get returns the field's value or its default. Unset lists and maps come
// back empty and detached; use Mutable to modify them in place. An unset
// message field yields an invalid Value.
func (m *Message) Get(f *descriptor.Field) Value {
	if v, ok := m.fields[m.field(f).Number]; ok {
		return v
	}
	switch {
	case f.IsMap():
		return ValueOfMap(NewMap(f))
	case f.IsList():
		return ValueOfList(NewList(f))
	}
	return Zero(f)
}

// Set assigns v to f. Assigning a member of a oneof clears its siblings.
// An invalid v clears the field. Set panics when v's type does not fit f.
func (m *Message) Set(f *descriptor.Field, v Value) {
	m.field(f)
	if !v.IsValid() {
		m.Clear(f)
		return
	}

	switch {
	case f.IsMap():
		if v.Map() == nil || v.Map().field != f && v.Map().field.FullName != f.FullName {
			panic(fmt.Sprintf("dynamic: map of wrong field for %s", f.FullName))
		}
	case f.IsList():
		if v.List() == nil || v.List().field != f && v.List().field.FullName != f.FullName {
			panic(fmt.Sprintf("dynamic: list of wrong field for %s", f.FullName))
		}
	default:
		checkScalar(f, v)
	}

	if o := f.Oneof; o != nil {
		for _, sibling := range o.Fields {
			if sibling != f {
				delete(m.fields, sibling.Number)
			}
		}
	}
	m.fields[f.Number] = v
}

func (m *Message) Clear(f *descriptor.Field) {
	delete(m.fields, m.field(f).Number)
}

// Has reports whether f would be written to the wire: explicitly set for
// fields with presence, non-default otherwise.
func (m *Message) Has(f *descriptor.Field) bool {
	v, ok := m.fields[m.field(f).Number]
	if !ok {
		return false
	}
	if f.Cardinality == descriptor.Repeated {
		return !v.isZero()
	}
	if f.HasPresence() {
		return true
	}
	return !v.isZero()
}

// SerializedOnWire reports whether f was ever explicitly assigned, so a
// field set to its zero value is told apart from an absent one.
func (m *Message) SerializedOnWire(f *descriptor.Field) bool {
	_, ok := m.fields[m.field(f).Number]
	return ok
}

// WhichOneof returns the set member of o and its value, or nil and an
// invalid Value when no member is set.
func (m *Message) WhichOneof(o *descriptor.Oneof) (*descriptor.Field, Value) {
	for _, f := range o.Fields {
		if v, ok := m.fields[f.Number]; ok {
			return f, v
		}
	}
	return nil, Value{}
}

// Mutable returns the stored list, map or message of f, creating and
// storing an empty one first when it is unset.
func (m *Message) Mutable(f *descriptor.Field) Value {
	if v, ok := m.fields[m.field(f).Number]; ok {
		return v
	}
	var v Value
	switch {
	case f.IsMap():
		v = ValueOfMap(NewMap(f))
	case f.IsList():
		v = ValueOfList(NewList(f))
	case f.Message != nil:
		v = ValueOfMessage(New(f.Message))
	default:
		panic(fmt.Sprintf("dynamic: %s is not a composite field", f.FullName))
	}
	m.Set(f, v)
	return v
}

// Range calls fn for every field Has reports, in field number order, until
// fn returns false.
func (m *Message) Range(fn func(*descriptor.Field, Value) bool) {
	for _, f := range m.desc.FieldsByNumber() {
		if m.Has(f) {
			if !fn(f, m.fields[f.Number]) {
				return
			}
		}
	}
}

// Unknown returns the raw bytes of fields the descriptor does not know, in
// the order they were read.
func (m *Message) Unknown() []byte { return m.unknown }

func (m *Message) SetUnknown(b []byte) { m.unknown = b }

func (m *Message) AppendUnknown(b []byte) {
	m.unknown = append(m.unknown, b...)
}

func (m *Message) Reset() {
	m.fields = make(map[protowire.Number]Value)
	m.unknown = nil
}

// IsZero reports whether no field is populated and no unknown data is held.
func (m *Message) IsZero() bool {
	if m == nil {
		return true
	}
	if len(m.unknown) > 0 {
		return false
	}
	for _, f := range m.desc.Fields {
		if m.Has(f) {
			return false
		}
	}
	return true
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := New(m.desc)
	for n, v := range m.fields {
		c.fields[n] = cloneValue(v)
	}
	if m.unknown != nil {
		c.unknown = append([]byte{}, m.unknown...)
	}
	return c
}

// Equal compares two messages structurally. Implicit-presence fields
// compare by value, so an unset field equals one set to its default.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !sameType(a.desc, b.desc) {
		return false
	}
	if string(a.unknown) != string(b.unknown) {
		return false
	}
	for _, f := range a.desc.Fields {
		if f.HasPresence() && a.Has(f) != b.Has(f) {
			return false
		}
		if !equalValue(a.Get(f), b.Get(f)) {
			return false
		}
	}
	return true
}

// ByName is shorthand for looking up a field by name, panicking when it
// does not exist.
func (m *Message) ByName(name string) *descriptor.Field {
	f := m.desc.ByName(name)
	if f == nil {
		panic(fmt.Sprintf("dynamic: %s has no field %q", m.desc.FullName, name))
	}
	return f
}
