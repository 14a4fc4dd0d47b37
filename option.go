package protomx

import (
	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/jsonpb"
	"github.com/hysios/protomx/wkt"
)

// JSONOption configures both directions of the JSON mapping. Options that
// only concern one direction are ignored by the other.
type JSONOption struct {
	Marshal   jsonpb.MarshalOptions
	Unmarshal jsonpb.UnmarshalOptions
}

type JSONOptFunc func(*JSONOption)

// WithResolver lets Any payloads of r's types be rendered and parsed.
func WithResolver(r descriptor.Resolver) JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.Resolver = r
		o.Unmarshal.Resolver = r
	}
}

func WithTable(t *wkt.Table) JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.Table = t
		o.Unmarshal.Table = t
	}
}

func WithEmitDefaults() JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.EmitDefaults = true
	}
}

func WithProtoNames() JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.UseProtoNames = true
	}
}

func WithEnumNumbers() JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.UseEnumNumbers = true
	}
}

func WithIndent(indent string) JSONOptFunc {
	return func(o *JSONOption) {
		o.Marshal.Indent = indent
	}
}

// WithStrict rejects unknown keys on input.
func WithStrict() JSONOptFunc {
	return func(o *JSONOption) {
		o.Unmarshal.Strict = true
	}
}

func evaluateJSON(optfns []JSONOptFunc) *JSONOption {
	var opts JSONOption
	for _, fn := range optfns {
		fn(&opts)
	}
	return &opts
}

// MarshalJSON renders m in the canonical JSON form.
func MarshalJSON(m Message, optfns ...JSONOptFunc) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	if v, ok := m.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return evaluateJSON(optfns).Marshal.Marshal(m.ToDynamic())
}

// UnmarshalJSON parses b into m. m is left untouched on error.
func UnmarshalJSON(b []byte, m Message, optfns ...JSONOptFunc) error {
	if m == nil {
		return ErrNilMessage
	}
	d, err := evaluateJSON(optfns).Unmarshal.Unmarshal(b, m.Descriptor())
	if err != nil {
		return err
	}
	return m.FromDynamic(d)
}
