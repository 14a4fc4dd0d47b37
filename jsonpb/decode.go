package jsonpb

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/naming"
	"github.com/hysios/protomx/wire"
	"github.com/hysios/protomx/wkt"
	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protowire"
)

type UnmarshalOptions struct {
	// Strict rejects object keys that name no field.
	Strict bool

	Resolver descriptor.Resolver
	Table    *wkt.Table
}

// Unmarshal parses b as a desc message with default options.
func Unmarshal(b []byte, desc *descriptor.Message) (*dynamic.Message, error) {
	return UnmarshalOptions{}.Unmarshal(b, desc)
}

func (o UnmarshalOptions) Unmarshal(b []byte, desc *descriptor.Message) (*dynamic.Message, error) {
	if !gjson.ValidBytes(b) {
		return nil, mappingErr("", "invalid JSON")
	}
	d := decoder{opts: o, table: o.Table}
	if d.table == nil {
		d.table = wkt.Standard()
	}

	m := dynamic.New(desc)
	if err := d.message("", gjson.ParseBytes(b), m); err != nil {
		return nil, err
	}
	return m, nil
}

type decoder struct {
	opts  UnmarshalOptions
	table *wkt.Table
}

func (d *decoder) message(path string, r gjson.Result, m *dynamic.Message) error {
	if kind := d.table.Kind(m.Descriptor().FullName); kind != wkt.None && kind != wkt.Empty {
		return d.wellKnown(path, kind, r, m)
	}
	if !r.IsObject() {
		return mappingErr(path, "expected object for %s, got %s", m.Descriptor().FullName, r.Type)
	}
	return d.fields(path, r, m, nil)
}

// fields decodes the members of object r into m, skipping the keys in
// skip.
func (d *decoder) fields(path string, r gjson.Result, m *dynamic.Message, skip map[string]bool) error {
	desc := m.Descriptor()
	var (
		err  error
		seen = make(map[*descriptor.Field]bool)
	)
	r.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if skip[name] {
			return true
		}
		f := desc.ByJSONName(name)
		if f == nil {
			f = desc.ByName(name)
		}
		fpath := join(path, name)
		if f == nil {
			if d.opts.Strict {
				err = mappingErr(fpath, "unknown field in %s", desc.FullName)
				return false
			}
			return true
		}
		// A repeated key replaces what the earlier one decoded.
		if seen[f] {
			m.Clear(f)
		}
		seen[f] = true
		if v.Type == gjson.Null && !acceptsNull(f) {
			m.Clear(f)
			return true
		}

		switch {
		case f.IsMap():
			err = d.mapValue(fpath, f, v, m.Mutable(f).Map())
		case f.IsList():
			err = d.list(fpath, f, v, m.Mutable(f).List())
		default:
			var val dynamic.Value
			if val, err = d.singular(fpath, f, v); err == nil {
				m.Set(f, val)
			}
		}
		return err == nil
	})
	return err
}

// acceptsNull reports whether a JSON null is a value of f instead of its
// absence.
func acceptsNull(f *descriptor.Field) bool {
	if f.Cardinality == descriptor.Repeated {
		return false
	}
	switch {
	case f.Message != nil:
		return f.Message.FullName == wkt.ValueName
	case f.Enum != nil:
		return f.Enum.FullName == wkt.NullValueName
	}
	return false
}

func (d *decoder) list(path string, f *descriptor.Field, r gjson.Result, l *dynamic.List) error {
	if !r.IsArray() {
		return mappingErr(path, "expected array, got %s", r.Type)
	}
	for i, el := range r.Array() {
		v, err := d.singular(index(path, i), f, el)
		if err != nil {
			return err
		}
		l.Append(v)
	}
	return nil
}

func (d *decoder) mapValue(path string, f *descriptor.Field, r gjson.Result, mp *dynamic.Map) error {
	if !r.IsObject() {
		return mappingErr(path, "expected object, got %s", r.Type)
	}
	kf, vf := f.MapKey(), f.MapValue()
	var err error
	r.ForEach(func(k, v gjson.Result) bool {
		kpath := key(path, k.String())
		var kv, vv dynamic.Value
		if kv, err = parseMapKey(kpath, kf, k.String()); err != nil {
			return false
		}
		if vv, err = d.singular(kpath, vf, v); err != nil {
			return false
		}
		mp.Set(kv, vv)
		return true
	})
	return err
}

func parseMapKey(path string, f *descriptor.Field, s string) (dynamic.Value, error) {
	switch f.Kind {
	case descriptor.StringKind:
		return dynamic.ValueOfString(s), nil
	case descriptor.BoolKind:
		switch s {
		case "true":
			return dynamic.ValueOfBool(true), nil
		case "false":
			return dynamic.ValueOfBool(false), nil
		}
		return dynamic.Value{}, mappingErr(path, "invalid bool map key %q", s)
	}
	return parseNumber(path, f, s)
}

func (d *decoder) singular(path string, f *descriptor.Field, r gjson.Result) (dynamic.Value, error) {
	switch f.Kind {
	case descriptor.BoolKind:
		switch r.Type {
		case gjson.True:
			return dynamic.ValueOfBool(true), nil
		case gjson.False:
			return dynamic.ValueOfBool(false), nil
		}
		return dynamic.Value{}, mappingErr(path, "expected bool, got %s", r.Type)

	case descriptor.StringKind:
		if r.Type != gjson.String {
			return dynamic.Value{}, mappingErr(path, "expected string, got %s", r.Type)
		}
		return dynamic.ValueOfString(r.Str), nil

	case descriptor.BytesKind:
		if r.Type != gjson.String {
			return dynamic.Value{}, mappingErr(path, "expected base64 string, got %s", r.Type)
		}
		b, err := decodeBase64(r.Str)
		if err != nil {
			return dynamic.Value{}, mappingErr(path, "invalid base64: %v", err)
		}
		return dynamic.ValueOfBytes(b), nil

	case descriptor.EnumKind:
		return d.enum(path, f.Enum, r)

	case descriptor.MessageKind, descriptor.GroupKind:
		nm := dynamic.New(f.Message)
		if err := d.message(path, r, nm); err != nil {
			return dynamic.Value{}, err
		}
		return dynamic.ValueOfMessage(nm), nil
	}

	switch r.Type {
	case gjson.Number:
		return parseNumber(path, f, r.Raw)
	case gjson.String:
		return parseNumber(path, f, r.Str)
	}
	return dynamic.Value{}, mappingErr(path, "expected number, got %s", r.Type)
}

func (d *decoder) enum(path string, en *descriptor.Enum, r gjson.Result) (dynamic.Value, error) {
	switch r.Type {
	case gjson.Null:
		if en.FullName == wkt.NullValueName {
			return dynamic.ValueOfEnum(0), nil
		}
	case gjson.String:
		if ev := en.ByName(r.Str); ev != nil {
			return dynamic.ValueOfEnum(ev.Number), nil
		}
		return dynamic.Value{}, mappingErr(path, "%q is not a value of %s", r.Str, en.FullName)
	case gjson.Number:
		n, err := parseInt(r.Raw, 32)
		if err != nil {
			return dynamic.Value{}, mappingErr(path, "invalid enum number %s", r.Raw)
		}
		// numbers the schema does not know are kept
		return dynamic.ValueOfEnum(descriptor.EnumNumber(n)), nil
	}
	return dynamic.Value{}, mappingErr(path, "expected %s, got %s", en.FullName, r.Type)
}

// parseNumber reads s as a value of numeric kind f.Kind. Integers may be
// written in exponent form when they are whole.
func parseNumber(path string, f *descriptor.Field, s string) (dynamic.Value, error) {
	invalid := func() (dynamic.Value, error) {
		return dynamic.Value{}, mappingErr(path, "invalid %v value %q", f.Kind, s)
	}
	switch f.Kind {
	case descriptor.Int32Kind, descriptor.Sint32Kind, descriptor.Sfixed32Kind:
		n, err := parseInt(s, 32)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfInt32(int32(n)), nil
	case descriptor.Int64Kind, descriptor.Sint64Kind, descriptor.Sfixed64Kind:
		n, err := parseInt(s, 64)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfInt64(n), nil
	case descriptor.Uint32Kind, descriptor.Fixed32Kind:
		n, err := parseUint(s, 32)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfUint32(uint32(n)), nil
	case descriptor.Uint64Kind, descriptor.Fixed64Kind:
		n, err := parseUint(s, 64)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfUint64(n), nil
	case descriptor.FloatKind:
		x, err := parseFloat(s, 32)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfFloat32(float32(x)), nil
	case descriptor.DoubleKind:
		x, err := parseFloat(s, 64)
		if err != nil {
			return invalid()
		}
		return dynamic.ValueOfFloat64(x), nil
	}
	return invalid()
}

func parseInt(s string, bits int) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, bits); err == nil {
		return n, nil
	}
	x, err := wholeFloat(s)
	if err != nil {
		return 0, err
	}
	lim := math.Ldexp(1, bits-1)
	if x < -lim || x >= lim {
		return 0, strconv.ErrRange
	}
	return int64(x), nil
}

func parseUint(s string, bits int) (uint64, error) {
	if n, err := strconv.ParseUint(s, 10, bits); err == nil {
		return n, nil
	}
	x, err := wholeFloat(s)
	if err != nil {
		return 0, err
	}
	if x < 0 || x >= math.Ldexp(1, bits) {
		return 0, strconv.ErrRange
	}
	return uint64(x), nil
}

func wholeFloat(s string) (float64, error) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if x != math.Trunc(x) || math.IsInf(x, 0) {
		return 0, strconv.ErrSyntax
	}
	return x, nil
}

func parseFloat(s string, bits int) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	// ParseFloat accepts these spellings too; JSON does not.
	if strings.ContainsAny(s, "iInN_xX") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, bits)
}

func decodeBase64(s string) ([]byte, error) {
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}
	return enc.DecodeString(s)
}

func (d *decoder) wellKnown(path string, kind wkt.Kind, r gjson.Result, m *dynamic.Message) error {
	desc := m.Descriptor()
	switch kind {
	case wkt.Timestamp, wkt.Duration:
		if r.Type != gjson.String {
			return mappingErr(path, "expected %s string, got %s", desc.FullName, r.Type)
		}
		parse := wkt.ParseTimestamp
		if kind == wkt.Duration {
			parse = wkt.ParseDuration
		}
		secs, nanos, err := parse(r.Str)
		if err != nil {
			return mappingErr(path, "%v", err)
		}
		wkt.SetParts(m, secs, nanos)

	case wkt.Wrapper:
		f := desc.ByNumber(1)
		v, err := d.singular(path, f, r)
		if err != nil {
			return err
		}
		m.Set(f, v)

	case wkt.Struct:
		f := desc.ByNumber(1)
		return d.mapValue(path, f, r, m.Mutable(f).Map())

	case wkt.ListValue:
		f := desc.ByNumber(1)
		return d.list(path, f, r, m.Mutable(f).List())

	case wkt.Value:
		return d.value(path, r, m)

	case wkt.FieldMask:
		if r.Type != gjson.String {
			return mappingErr(path, "expected field mask string, got %s", r.Type)
		}
		if r.Str == "" {
			return nil
		}
		paths := m.Mutable(desc.ByNumber(1)).List()
		for i, p := range strings.Split(r.Str, ",") {
			if strings.Contains(p, "_") {
				return mappingErr(index(path, i), "field mask path %q is not lowerCamelCase", p)
			}
			paths.Append(dynamic.ValueOfString(naming.SnakeName(p)))
		}

	case wkt.Any:
		return d.any(path, r, m)
	}
	return nil
}

func (d *decoder) value(path string, r gjson.Result, m *dynamic.Message) error {
	desc := m.Descriptor()
	var n int
	var v dynamic.Value
	switch r.Type {
	case gjson.Null:
		n, v = 1, dynamic.ValueOfEnum(0)
	case gjson.Number:
		x, err := strconv.ParseFloat(r.Raw, 64)
		if err != nil {
			return mappingErr(path, "invalid number %s", r.Raw)
		}
		n, v = 2, dynamic.ValueOfFloat64(x)
	case gjson.String:
		n, v = 3, dynamic.ValueOfString(r.Str)
	case gjson.True, gjson.False:
		n, v = 4, dynamic.ValueOfBool(r.Bool())
	case gjson.JSON:
		n = 5
		if r.IsArray() {
			n = 6
		}
		f := desc.ByNumber(protowire.Number(n))
		nm := dynamic.New(f.Message)
		if err := d.message(path, r, nm); err != nil {
			return err
		}
		v = dynamic.ValueOfMessage(nm)
	}
	m.Set(desc.ByNumber(protowire.Number(n)), v)
	return nil
}

func (d *decoder) any(path string, r gjson.Result, m *dynamic.Message) error {
	if !r.IsObject() {
		return mappingErr(path, "expected object for %s, got %s", wkt.AnyName, r.Type)
	}
	typ := member(r, "@type")
	if !typ.Exists() {
		if len(r.Map()) == 0 {
			return nil
		}
		return mappingErr(path, "missing @type")
	}
	if typ.Type != gjson.String {
		return mappingErr(join(path, "@type"), "expected string, got %s", typ.Type)
	}

	url := typ.Str
	target := resolve(d.opts.Resolver, d.table, wkt.MessageName(url))
	if target == nil {
		return mappingErr(path, "unable to resolve %q", url)
	}
	inner := dynamic.New(target)
	if kind := d.table.Kind(target.FullName); kind != wkt.None && kind != wkt.Empty {
		if err := d.wellKnown(join(path, "value"), kind, member(r, "value"), inner); err != nil {
			return err
		}
		if d.opts.Strict {
			for k := range r.Map() {
				if k != "@type" && k != "value" {
					return mappingErr(join(path, k), "unknown field in %s", wkt.AnyName)
				}
			}
		}
	} else if err := d.fields(path, r, inner, map[string]bool{"@type": true}); err != nil {
		return err
	}

	b, err := wire.Marshal(inner)
	if err != nil {
		return mappingErr(path, "encode %s: %v", target.FullName, err)
	}
	desc := m.Descriptor()
	m.Set(desc.ByNumber(1), dynamic.ValueOfString(url))
	m.Set(desc.ByNumber(2), dynamic.ValueOfBytes(b))
	return nil
}

// member looks a key up without gjson path syntax, which reserves '@'.
func member(r gjson.Result, name string) gjson.Result {
	var out gjson.Result
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() == name {
			out = v
			return false
		}
		return true
	})
	return out
}
