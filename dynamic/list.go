package dynamic

import (
	"fmt"

	"github.com/hysios/protomx/descriptor"
)

// List holds the elements of a repeated field in insertion order.
type List struct {
	field *descriptor.Field
	vals  []Value
}

func NewList(f *descriptor.Field) *List {
	return &List{field: f}
}

func (l *List) Field() *descriptor.Field { return l.field }

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.vals)
}

func (l *List) Get(i int) Value { return l.vals[i] }

func (l *List) Set(i int, v Value) {
	checkScalar(l.field, v)
	l.vals[i] = v
}

func (l *List) Append(v Value) {
	checkScalar(l.field, v)
	l.vals = append(l.vals, v)
}

// NewElement returns a fresh message for appending to a list of messages.
func (l *List) NewElement() *Message {
	if l.field.Message == nil {
		panic(fmt.Sprintf("dynamic: %s is not a list of messages", l.field.FullName))
	}
	return New(l.field.Message)
}

func (l *List) Truncate(n int) {
	l.vals = l.vals[:n]
}

func (l *List) clone() *List {
	c := &List{field: l.field, vals: make([]Value, len(l.vals))}
	for i, v := range l.vals {
		c.vals[i] = cloneValue(v)
	}
	return c
}

func equalList(a, b *List) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !equalValue(a.vals[i], b.vals[i]) {
			return false
		}
	}
	return true
}

// Map holds the entries of a map field. Iteration follows first insertion;
// overwriting a key keeps its position.
type Map struct {
	field   *descriptor.Field
	keys    []Value
	vals    []Value
	indexes map[any]int
}

func NewMap(f *descriptor.Field) *Map {
	return &Map{field: f, indexes: make(map[any]int)}
}

func (m *Map) Field() *descriptor.Field { return m.field }

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) Get(k Value) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	i, ok := m.indexes[k.v]
	if !ok {
		return Value{}, false
	}
	return m.vals[i], true
}

// Set upserts k. The later value wins.
func (m *Map) Set(k, v Value) {
	checkScalar(m.field.MapKey(), k)
	checkScalar(m.field.MapValue(), v)
	if i, ok := m.indexes[k.v]; ok {
		m.vals[i] = v
		return
	}
	m.indexes[k.v] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
}

func (m *Map) Delete(k Value) {
	i, ok := m.indexes[k.v]
	if !ok {
		return
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	delete(m.indexes, k.v)
	for j := i; j < len(m.keys); j++ {
		m.indexes[m.keys[j].v] = j
	}
}

// Range visits entries in insertion order until fn returns false.
func (m *Map) Range(fn func(k, v Value) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}

// NewValue returns a fresh message for the value side of a map of
// messages.
func (m *Map) NewValue() *Message {
	vf := m.field.MapValue()
	if vf.Message == nil {
		panic(fmt.Sprintf("dynamic: %s does not map to messages", m.field.FullName))
	}
	return New(vf.Message)
}

func (m *Map) clone() *Map {
	c := NewMap(m.field)
	for i, k := range m.keys {
		c.indexes[k.v] = i
		c.keys = append(c.keys, k)
		c.vals = append(c.vals, cloneValue(m.vals[i]))
	}
	return c
}

// equalMap ignores order.
func equalMap(a, b *Map) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i, k := range a.keys {
		v, ok := b.Get(k)
		if !ok || !equalValue(a.vals[i], v) {
			return false
		}
	}
	return true
}
