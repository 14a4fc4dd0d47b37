package jsonpb

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/naming"
	"github.com/hysios/protomx/wire"
	"github.com/hysios/protomx/wkt"
	"github.com/tidwall/pretty"
)

type MarshalOptions struct {
	// EmitDefaults renders fields at their default value. Unset message
	// fields and unset proto3 optional fields render as null. Unset members
	// of a oneof are still left out.
	EmitDefaults bool
	// UseProtoNames keys fields by their declared name instead of the
	// lowerCamelCase JSON name.
	UseProtoNames bool
	// UseEnumNumbers renders enums as numbers.
	UseEnumNumbers bool
	// Indent, when set, pretty prints the output with this indent.
	Indent string

	// Resolver finds the payload type of Any messages. The well-known
	// types are always found through Table.
	Resolver descriptor.Resolver
	// Table defaults to wkt.Standard.
	Table *wkt.Table
}

// Marshal renders m with default options.
func Marshal(m *dynamic.Message) ([]byte, error) {
	return MarshalOptions{}.Marshal(m)
}

func (o MarshalOptions) Marshal(m *dynamic.Message) ([]byte, error) {
	e := encoder{opts: o, table: o.Table}
	if e.table == nil {
		e.table = wkt.Standard()
	}
	if err := e.message("", m); err != nil {
		return nil, err
	}
	if o.Indent == "" {
		return e.buf, nil
	}
	out := pretty.PrettyOptions(e.buf, &pretty.Options{Width: 80, Indent: o.Indent})
	return bytes.TrimSuffix(out, []byte("\n")), nil
}

type encoder struct {
	opts  MarshalOptions
	table *wkt.Table
	buf   []byte
}

func (e *encoder) message(path string, m *dynamic.Message) error {
	if m == nil {
		e.buf = append(e.buf, "null"...)
		return nil
	}
	if kind := e.table.Kind(m.Descriptor().FullName); kind != wkt.None && kind != wkt.Empty {
		return e.wellKnown(path, kind, m)
	}
	e.buf = append(e.buf, '{')
	if _, err := e.fields(path, m, 0); err != nil {
		return err
	}
	e.buf = append(e.buf, '}')
	return nil
}

// fields writes the members of m without braces. n is the number of
// members already written to the enclosing object.
func (e *encoder) fields(path string, m *dynamic.Message, n int) (int, error) {
	for _, f := range m.Descriptor().Fields {
		var v dynamic.Value
		switch {
		case m.Has(f):
			v = m.Get(f)
		case f.RealOneof() != nil || !e.opts.EmitDefaults:
			continue
		case f.IsMap(), f.IsList():
			v = m.Get(f)
		case f.HasPresence() && (f.Message != nil || f.Oneof != nil):
			// left invalid, rendered as null
		default:
			v = m.Get(f)
		}

		if n > 0 {
			e.buf = append(e.buf, ',')
		}
		n++
		name := f.JSONName
		if e.opts.UseProtoNames {
			name = f.Name
		}
		e.buf = appendString(e.buf, name)
		e.buf = append(e.buf, ':')

		fpath := join(path, name)
		var err error
		switch {
		case f.IsMap():
			err = e.mapValue(fpath, f, v.Map())
		case f.IsList():
			err = e.list(fpath, f, v.List())
		default:
			err = e.singular(fpath, f, v)
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (e *encoder) list(path string, f *descriptor.Field, l *dynamic.List) error {
	e.buf = append(e.buf, '[')
	for i := 0; i < l.Len(); i++ {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		if err := e.singular(index(path, i), f, l.Get(i)); err != nil {
			return err
		}
	}
	e.buf = append(e.buf, ']')
	return nil
}

func (e *encoder) mapValue(path string, f *descriptor.Field, mp *dynamic.Map) error {
	vf := f.MapValue()
	var err error
	i := 0
	e.buf = append(e.buf, '{')
	mp.Range(func(k, v dynamic.Value) bool {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		i++
		ks := mapKey(k)
		e.buf = appendString(e.buf, ks)
		e.buf = append(e.buf, ':')
		err = e.singular(key(path, ks), vf, v)
		return err == nil
	})
	if err != nil {
		return err
	}
	e.buf = append(e.buf, '}')
	return nil
}

func mapKey(k dynamic.Value) string {
	switch x := k.Interface().(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int32, int64:
		return strconv.FormatInt(k.Int(), 10)
	case uint32, uint64:
		return strconv.FormatUint(k.Uint(), 10)
	}
	panic("jsonpb: invalid map key")
}

// singular writes one value of f. An invalid v is written as null.
func (e *encoder) singular(path string, f *descriptor.Field, v dynamic.Value) error {
	if !v.IsValid() {
		e.buf = append(e.buf, "null"...)
		return nil
	}
	switch f.Kind {
	case descriptor.Int32Kind, descriptor.Sint32Kind, descriptor.Sfixed32Kind:
		e.buf = strconv.AppendInt(e.buf, v.Int(), 10)
	case descriptor.Uint32Kind, descriptor.Fixed32Kind:
		e.buf = strconv.AppendUint(e.buf, v.Uint(), 10)
	case descriptor.Int64Kind, descriptor.Sint64Kind, descriptor.Sfixed64Kind:
		e.buf = append(e.buf, '"')
		e.buf = strconv.AppendInt(e.buf, v.Int(), 10)
		e.buf = append(e.buf, '"')
	case descriptor.Uint64Kind, descriptor.Fixed64Kind:
		e.buf = append(e.buf, '"')
		e.buf = strconv.AppendUint(e.buf, v.Uint(), 10)
		e.buf = append(e.buf, '"')
	case descriptor.FloatKind:
		e.buf = appendFloat(e.buf, v.Float(), 32)
	case descriptor.DoubleKind:
		e.buf = appendFloat(e.buf, v.Float(), 64)
	case descriptor.BoolKind:
		e.buf = strconv.AppendBool(e.buf, v.Bool())
	case descriptor.StringKind:
		s := v.String()
		if !utf8.ValidString(s) {
			return mappingErr(path, "invalid UTF-8 in string")
		}
		e.buf = appendString(e.buf, s)
	case descriptor.BytesKind:
		e.buf = append(e.buf, '"')
		e.buf = append(e.buf, base64.StdEncoding.EncodeToString(v.Bytes())...)
		e.buf = append(e.buf, '"')
	case descriptor.EnumKind:
		e.enum(f.Enum, v.Enum())
	case descriptor.MessageKind, descriptor.GroupKind:
		return e.message(path, v.Message())
	default:
		return mappingErr(path, "unsupported kind %v", f.Kind)
	}
	return nil
}

func (e *encoder) enum(en *descriptor.Enum, n descriptor.EnumNumber) {
	if en != nil && en.FullName == wkt.NullValueName {
		e.buf = append(e.buf, "null"...)
		return
	}
	if !e.opts.UseEnumNumbers && en != nil {
		if ev := en.ByNumber(n); ev != nil {
			e.buf = appendString(e.buf, ev.Name)
			return
		}
	}
	e.buf = strconv.AppendInt(e.buf, int64(n), 10)
}

func (e *encoder) wellKnown(path string, kind wkt.Kind, m *dynamic.Message) error {
	desc := m.Descriptor()
	switch kind {
	case wkt.Timestamp:
		s, err := wkt.FormatTimestamp(wkt.TimestampParts(m))
		if err != nil {
			return mappingErr(path, "%v", err)
		}
		e.buf = appendString(e.buf, s)
	case wkt.Duration:
		s, err := wkt.FormatDuration(wkt.TimestampParts(m))
		if err != nil {
			return mappingErr(path, "%v", err)
		}
		e.buf = appendString(e.buf, s)
	case wkt.Wrapper:
		f := desc.ByNumber(1)
		return e.singular(path, f, m.Get(f))
	case wkt.Struct:
		return e.mapValue(path, desc.ByNumber(1), m.Get(desc.ByNumber(1)).Map())
	case wkt.ListValue:
		return e.list(path, desc.ByNumber(1), m.Get(desc.ByNumber(1)).List())
	case wkt.Value:
		f, v := m.WhichOneof(desc.Oneofs[0])
		if f == nil {
			return mappingErr(path, "%s has no kind set", desc.FullName)
		}
		if f.Kind == descriptor.DoubleKind && (math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0)) {
			return mappingErr(path, "%v is not a valid %s number", v.Float(), desc.FullName)
		}
		return e.singular(path, f, v)
	case wkt.FieldMask:
		return e.fieldMask(path, m)
	case wkt.Any:
		return e.any(path, m)
	}
	return nil
}

func (e *encoder) fieldMask(path string, m *dynamic.Message) error {
	paths := m.Get(m.Descriptor().ByNumber(1)).List()
	parts := make([]string, 0, paths.Len())
	for i := 0; i < paths.Len(); i++ {
		p := paths.Get(i).String()
		camel := naming.JSONName(p)
		if naming.SnakeName(camel) != p {
			return mappingErr(index(path, i), "field mask path %q has no JSON form", p)
		}
		parts = append(parts, camel)
	}
	e.buf = appendString(e.buf, strings.Join(parts, ","))
	return nil
}

func (e *encoder) any(path string, m *dynamic.Message) error {
	desc := m.Descriptor()
	url := m.Get(desc.ByNumber(1)).String()
	payload := m.Get(desc.ByNumber(2)).Bytes()
	if url == "" && len(payload) == 0 {
		e.buf = append(e.buf, "{}"...)
		return nil
	}

	target := resolve(e.opts.Resolver, e.table, wkt.MessageName(url))
	if target == nil {
		return mappingErr(path, "unable to resolve %q", url)
	}
	inner, err := wire.Unmarshal(payload, target)
	if err != nil {
		return mappingErr(path, "decode %s: %v", target.FullName, err)
	}

	e.buf = append(e.buf, `{"@type":`...)
	e.buf = appendString(e.buf, url)
	if kind := e.table.Kind(target.FullName); kind != wkt.None && kind != wkt.Empty {
		e.buf = append(e.buf, `,"value":`...)
		if err := e.wellKnown(join(path, "value"), kind, inner); err != nil {
			return err
		}
	} else if _, err := e.fields(path, inner, 1); err != nil {
		return err
	}
	e.buf = append(e.buf, '}')
	return nil
}

func resolve(r descriptor.Resolver, table *wkt.Table, name string) *descriptor.Message {
	if r != nil {
		if m := r.Message(name); m != nil {
			return m
		}
	}
	if table.Kind(name) != wkt.None {
		return table.Message(name)
	}
	return nil
}

// appendFloat follows the ES6 number formatting of encoding/json, with
// the non-finite values spelled as strings.
func appendFloat(b []byte, f float64, bits int) []byte {
	switch {
	case math.IsNaN(f):
		return append(b, `"NaN"`...)
	case math.IsInf(f, 1):
		return append(b, `"Infinity"`...)
	case math.IsInf(f, -1):
		return append(b, `"-Infinity"`...)
	}

	format := byte('f')
	if abs := math.Abs(f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	b = strconv.AppendFloat(b, f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

const hex = "0123456789abcdef"

// appendString quotes valid UTF-8 s as a JSON string.
func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		b = append(b, s[start:i]...)
		switch c {
		case '"', '\\':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
		}
		start = i + 1
	}
	b = append(b, s[start:]...)
	return append(b, '"')
}
