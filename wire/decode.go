package wire

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"google.golang.org/protobuf/encoding/protowire"
)

// WireFormatError reports malformed input at a byte offset of the buffer
// passed to Unmarshal.
type WireFormatError struct {
	Offset int
	Msg    string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire: offset %d: %s", e.Offset, e.Msg)
}

func errAt(off int, format string, args ...any) error {
	return &WireFormatError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}

func parseErr(off, n int) error {
	return errAt(off, "%v", protowire.ParseError(n))
}

// Unmarshal decodes b as a desc message. On error no message is returned.
//
// Fields the descriptor does not know, groups, and known fields framed
// with an unexpected wire type are kept as unknown bytes.
func Unmarshal(b []byte, desc *descriptor.Message) (*dynamic.Message, error) {
	m := dynamic.New(desc)
	if err := decodeInto(m, b, 0); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInto(m *dynamic.Message, b []byte, base int) error {
	desc := m.Descriptor()
	for pos := 0; pos < len(b); {
		num, typ, n := protowire.ConsumeTag(b[pos:])
		if n < 0 {
			return parseErr(base+pos, n)
		}
		start := pos
		pos += n

		f := desc.ByNumber(num)
		if f == nil || !accepts(f, typ) {
			n = protowire.ConsumeFieldValue(num, typ, b[pos:])
			if n < 0 {
				return parseErr(base+pos, n)
			}
			pos += n
			m.AppendUnknown(b[start:pos])
			continue
		}

		n, err := decodeField(m, f, typ, b[pos:], base+pos)
		if err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// accepts reports whether a wire type is a valid framing of f. Repeated
// numeric fields take both the packed and the single-element form.
func accepts(f *descriptor.Field, typ protowire.Type) bool {
	switch {
	case f.Kind == descriptor.GroupKind:
		return false
	case f.IsMap():
		return typ == protowire.BytesType
	case f.IsList() && f.Kind.Packable() && typ == protowire.BytesType:
		return true
	}
	return typ == f.Kind.WireType()
}

func decodeField(m *dynamic.Message, f *descriptor.Field, typ protowire.Type, b []byte, off int) (int, error) {
	switch {
	case f.IsMap():
		entry, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, parseErr(off, n)
		}
		k, v, err := decodeEntry(f, entry, off+n-len(entry))
		if err != nil {
			return 0, err
		}
		m.Mutable(f).Map().Set(k, v)
		return n, nil

	case f.IsList():
		l := m.Mutable(f).List()
		if typ == protowire.BytesType && f.Kind.Packable() {
			run, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, parseErr(off, n)
			}
			runOff := off + n - len(run)
			for p := 0; p < len(run); {
				v, vn, err := consumeScalar(f, f.Kind.WireType(), run[p:], runOff+p)
				if err != nil {
					return 0, err
				}
				l.Append(v)
				p += vn
			}
			return n, nil
		}
		if f.Kind == descriptor.MessageKind {
			sub, n, err := consumeMessage(f.Message, b, off, nil)
			if err != nil {
				return 0, err
			}
			l.Append(dynamic.ValueOfMessage(sub))
			return n, nil
		}
		v, n, err := consumeScalar(f, typ, b, off)
		if err != nil {
			return 0, err
		}
		l.Append(v)
		return n, nil

	case f.Kind == descriptor.MessageKind:
		// repeated occurrences of a singular message merge
		sub, n, err := consumeMessage(f.Message, b, off, m.Get(f).Message())
		if err != nil {
			return 0, err
		}
		m.Set(f, dynamic.ValueOfMessage(sub))
		return n, nil
	}

	v, n, err := consumeScalar(f, typ, b, off)
	if err != nil {
		return 0, err
	}
	m.Set(f, v)
	return n, nil
}

func consumeMessage(desc *descriptor.Message, b []byte, off int, into *dynamic.Message) (*dynamic.Message, int, error) {
	payload, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, parseErr(off, n)
	}
	if into == nil {
		into = dynamic.New(desc)
	}
	if err := decodeInto(into, payload, off+n-len(payload)); err != nil {
		return nil, 0, err
	}
	return into, n, nil
}

// decodeEntry reads one map entry. Missing key or value take their
// defaults; a duplicated key or value inside the entry keeps the last.
func decodeEntry(f *descriptor.Field, b []byte, base int) (dynamic.Value, dynamic.Value, error) {
	entry := dynamic.New(f.Message)
	if err := decodeInto(entry, b, base); err != nil {
		return dynamic.Value{}, dynamic.Value{}, err
	}

	kf, vf := f.MapKey(), f.MapValue()
	k := entry.Get(kf)
	v := entry.Get(vf)
	if vf.Kind == descriptor.MessageKind && !v.IsValid() {
		v = dynamic.ValueOfMessage(dynamic.New(vf.Message))
	}
	return k, v, nil
}

func consumeScalar(f *descriptor.Field, typ protowire.Type, b []byte, off int) (dynamic.Value, int, error) {
	switch typ {
	case protowire.VarintType:
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dynamic.Value{}, 0, parseErr(off, n)
		}
		switch f.Kind {
		case descriptor.BoolKind:
			return dynamic.ValueOfBool(protowire.DecodeBool(x)), n, nil
		case descriptor.EnumKind:
			return dynamic.ValueOfEnum(descriptor.EnumNumber(int32(x))), n, nil
		case descriptor.Int32Kind:
			return dynamic.ValueOfInt32(int32(x)), n, nil
		case descriptor.Int64Kind:
			return dynamic.ValueOfInt64(int64(x)), n, nil
		case descriptor.Uint32Kind:
			return dynamic.ValueOfUint32(uint32(x)), n, nil
		case descriptor.Uint64Kind:
			return dynamic.ValueOfUint64(x), n, nil
		case descriptor.Sint32Kind:
			return dynamic.ValueOfInt32(int32(protowire.DecodeZigZag(x & math.MaxUint32))), n, nil
		case descriptor.Sint64Kind:
			return dynamic.ValueOfInt64(protowire.DecodeZigZag(x)), n, nil
		}

	case protowire.Fixed32Type:
		x, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return dynamic.Value{}, 0, parseErr(off, n)
		}
		switch f.Kind {
		case descriptor.Fixed32Kind:
			return dynamic.ValueOfUint32(x), n, nil
		case descriptor.Sfixed32Kind:
			return dynamic.ValueOfInt32(int32(x)), n, nil
		case descriptor.FloatKind:
			return dynamic.ValueOfFloat32(math.Float32frombits(x)), n, nil
		}

	case protowire.Fixed64Type:
		x, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return dynamic.Value{}, 0, parseErr(off, n)
		}
		switch f.Kind {
		case descriptor.Fixed64Kind:
			return dynamic.ValueOfUint64(x), n, nil
		case descriptor.Sfixed64Kind:
			return dynamic.ValueOfInt64(int64(x)), n, nil
		case descriptor.DoubleKind:
			return dynamic.ValueOfFloat64(math.Float64frombits(x)), n, nil
		}

	case protowire.BytesType:
		x, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dynamic.Value{}, 0, parseErr(off, n)
		}
		switch f.Kind {
		case descriptor.StringKind:
			if !utf8.Valid(x) {
				return dynamic.Value{}, 0, errAt(off+n-len(x), "%s: string is not valid UTF-8", f.FullName)
			}
			return dynamic.ValueOfString(string(x)), n, nil
		case descriptor.BytesKind:
			return dynamic.ValueOfBytes(append([]byte{}, x...)), n, nil
		}
	}
	return dynamic.Value{}, 0, errAt(off, "%s: wire type %d does not fit %v", f.FullName, typ, f.Kind)
}
