// Package protomx is the runtime generated code links against. A
// generated message converts to and from a dynamic.Message and reuses the
// wire codec and the JSON mapper through it.
package protomx

import (
	"cmp"
	"slices"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/wire"
	"github.com/pkg/errors"
)

// Message is implemented by every generated message type.
type Message interface {
	Descriptor() *descriptor.Message
	ToDynamic() *dynamic.Message
	FromDynamic(m *dynamic.Message) error
}

// Validator is implemented by messages generated with the validated
// variant.
type Validator interface {
	Validate() error
}

// Marshal encodes m, validating it first when it is a Validator.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	if v, ok := m.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return wire.Marshal(m.ToDynamic())
}

// Unmarshal decodes b into m. m is left untouched when b is malformed.
func Unmarshal(b []byte, m Message) error {
	if m == nil {
		return ErrNilMessage
	}
	d, err := wire.Unmarshal(b, m.Descriptor())
	if err != nil {
		return err
	}
	return m.FromDynamic(d)
}

// Size is the encoded length of m.
func Size(m Message) int {
	return wire.Size(m.ToDynamic())
}

func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	return dynamic.Equal(a.ToDynamic(), b.ToDynamic())
}

// MustLoadSchema decodes the serialized FileDescriptorSet embedded in a
// generated package. It panics because a broken embedding is a generator
// bug, not a runtime condition.
func MustLoadSchema(raw []byte) *descriptor.Schema {
	s, err := descriptor.Load(raw)
	if err != nil {
		panic(errors.Wrap(err, "protomx: load embedded schema"))
	}
	return s
}

// MustMessage looks a message up in s, panicking when it is missing.
func MustMessage(s *descriptor.Schema, name string) *descriptor.Message {
	m := s.Message(name)
	if m == nil {
		panic("protomx: embedded schema has no message " + name)
	}
	return m
}

// CheckType errors unless m is an instance of want.
func CheckType(want *descriptor.Message, m *dynamic.Message) error {
	if m == nil {
		return ErrNilMessage
	}
	if got := m.Descriptor(); got != want && got.FullName != want.FullName {
		return &TypeMismatchError{Want: want.FullName, Got: got.FullName}
	}
	return nil
}

// SortedKeys returns the keys of m in ascending order, so that messages
// holding Go maps encode deterministically.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SortedBoolKeys is SortedKeys for bool keyed maps: false first.
func SortedBoolKeys[V any](m map[bool]V) []bool {
	var keys []bool
	for _, k := range []bool{false, true} {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Convert builds a fresh generated message of type P from m.
func Convert[T any, P interface {
	*T
	Message
}](m *dynamic.Message) (P, error) {
	p := P(new(T))
	if err := p.FromDynamic(m); err != nil {
		return nil, err
	}
	return p, nil
}
