package wkt

import (
	"math"
	"sort"
	"time"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/pkg/errors"
)

// TimestampParts reads seconds and nanos of a Timestamp or Duration.
func TimestampParts(m *dynamic.Message) (int64, int32) {
	d := m.Descriptor()
	return m.Get(d.ByNumber(1)).Int(), int32(m.Get(d.ByNumber(2)).Int())
}

// SetParts writes seconds and nanos of a Timestamp or Duration.
func SetParts(m *dynamic.Message, secs int64, nanos int32) {
	d := m.Descriptor()
	m.Set(d.ByNumber(1), dynamic.ValueOfInt64(secs))
	m.Set(d.ByNumber(2), dynamic.ValueOfInt32(nanos))
}

func FromTime(desc *descriptor.Message, t time.Time) *dynamic.Message {
	m := dynamic.New(desc)
	SetParts(m, t.Unix(), int32(t.Nanosecond()))
	return m
}

func ToTime(m *dynamic.Message) time.Time {
	secs, nanos := TimestampParts(m)
	return time.Unix(secs, int64(nanos)).UTC()
}

func FromDuration(desc *descriptor.Message, d time.Duration) *dynamic.Message {
	m := dynamic.New(desc)
	SetParts(m, int64(d/time.Second), int32(d%time.Second))
	return m
}

// ToDuration saturates durations beyond the range of time.Duration.
func ToDuration(m *dynamic.Message) time.Duration {
	secs, nanos := TimestampParts(m)
	const maxSecs = math.MaxInt64 / int64(time.Second)
	switch {
	case secs > maxSecs:
		return time.Duration(math.MaxInt64)
	case secs < -maxSecs:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(secs)*time.Second + time.Duration(nanos)
}

// Wrap stores v in the value field of a wrapper message.
func Wrap(desc *descriptor.Message, v dynamic.Value) *dynamic.Message {
	m := dynamic.New(desc)
	m.Set(desc.ByNumber(1), v)
	return m
}

func Unwrap(m *dynamic.Message) dynamic.Value {
	return m.Get(m.Descriptor().ByNumber(1))
}

// Value field numbers.
const (
	nullValue   = 1
	numberValue = 2
	stringValue = 3
	boolValue   = 4
	structValue = 5
	listValue   = 6
)

// NewStruct builds a Struct from decoded JSON. Keys are inserted sorted.
func NewStruct(desc *descriptor.Message, fields map[string]any) (*dynamic.Message, error) {
	m := dynamic.New(desc)
	ff := desc.ByNumber(1)
	mp := m.Mutable(ff).Map()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := NewValue(ff.MapValue().Message, fields[k])
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", k)
		}
		mp.Set(dynamic.ValueOfString(k), dynamic.ValueOfMessage(v))
	}
	return m, nil
}

// NewValue builds a Value from nil, bool, a number, string, []any or
// map[string]any.
func NewValue(desc *descriptor.Message, v any) (*dynamic.Message, error) {
	m := dynamic.New(desc)
	switch v := v.(type) {
	case nil:
		m.Set(desc.ByNumber(nullValue), dynamic.ValueOfEnum(0))
	case bool:
		m.Set(desc.ByNumber(boolValue), dynamic.ValueOfBool(v))
	case string:
		m.Set(desc.ByNumber(stringValue), dynamic.ValueOfString(v))
	case float64:
		m.Set(desc.ByNumber(numberValue), dynamic.ValueOfFloat64(v))
	case float32:
		m.Set(desc.ByNumber(numberValue), dynamic.ValueOfFloat64(float64(v)))
	case int:
		m.Set(desc.ByNumber(numberValue), dynamic.ValueOfFloat64(float64(v)))
	case int64:
		m.Set(desc.ByNumber(numberValue), dynamic.ValueOfFloat64(float64(v)))
	case map[string]any:
		sf := desc.ByNumber(structValue)
		s, err := NewStruct(sf.Message, v)
		if err != nil {
			return nil, err
		}
		m.Set(sf, dynamic.ValueOfMessage(s))
	case []any:
		lf := desc.ByNumber(listValue)
		lm := dynamic.New(lf.Message)
		values := lm.Mutable(lf.Message.ByNumber(1)).List()
		for i, el := range v {
			ev, err := NewValue(desc, el)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			values.Append(dynamic.ValueOfMessage(ev))
		}
		m.Set(lf, dynamic.ValueOfMessage(lm))
	default:
		return nil, errors.Errorf("wkt: %T has no google.protobuf.Value form", v)
	}
	return m, nil
}

// StructToMap is the inverse of NewStruct.
func StructToMap(m *dynamic.Message) map[string]any {
	out := make(map[string]any)
	m.Get(m.Descriptor().ByNumber(1)).Map().Range(func(k, v dynamic.Value) bool {
		out[k.String()] = ValueToInterface(v.Message())
		return true
	})
	return out
}

// ValueToInterface converts a Value message to plain Go data.
func ValueToInterface(m *dynamic.Message) any {
	if m == nil {
		return nil
	}
	f, v := m.WhichOneof(m.Descriptor().Oneofs[0])
	if f == nil {
		return nil
	}
	switch f.Number {
	case numberValue:
		return v.Float()
	case stringValue:
		return v.String()
	case boolValue:
		return v.Bool()
	case structValue:
		return StructToMap(v.Message())
	case listValue:
		l := v.Message().Get(f.Message.ByNumber(1)).List()
		out := make([]any, l.Len())
		for i := range out {
			out[i] = ValueToInterface(l.Get(i).Message())
		}
		return out
	}
	return nil
}
