package protomx_test

import (
	"errors"
	"testing"

	"github.com/hysios/protomx"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/internal/rpctest"
	"github.com/hysios/protomx/wire"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"go.uber.org/multierr"
)

func TestMarshalRoundTrip(t *testing.T) {
	in := &rpctest.Note{Text: "hi", N: 3}
	b, err := protomx.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x02, 'h', 'i', 0x10, 0x03}, b)
	assert.Equal(t, len(b), protomx.Size(in))

	var out rpctest.Note
	require.NoError(t, protomx.Unmarshal(b, &out))
	assert.Equal(t, *in, out)
	assert.True(t, protomx.Equal(in, &out))
}

func TestUnmarshalMalformed(t *testing.T) {
	out := rpctest.Note{Text: "keep"}
	err := protomx.Unmarshal([]byte{0x0a, 0x05, 'h'}, &out)

	var wf *wire.WireFormatError
	require.True(t, errors.As(err, &wf))
	assert.Equal(t, "keep", out.Text)
}

func TestJSON(t *testing.T) {
	b, err := protomx.MarshalJSON(&rpctest.Note{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hi"}`, string(b))

	b, err = protomx.MarshalJSON(&rpctest.Note{}, protomx.WithEmitDefaults())
	require.NoError(t, err)
	assert.Equal(t, `{"text":"","n":0}`, string(b))

	var out rpctest.Note
	require.NoError(t, protomx.UnmarshalJSON([]byte(`{"text":"x","n":"7"}`), &out))
	assert.Equal(t, rpctest.Note{Text: "x", N: 7}, out)

	assert.Error(t, protomx.UnmarshalJSON([]byte(`{"bogus":1}`), &out, protomx.WithStrict()))
	assert.NoError(t, protomx.UnmarshalJSON([]byte(`{"bogus":1}`), &out))
}

func TestNilMessage(t *testing.T) {
	_, err := protomx.Marshal(nil)
	assert.Equal(t, protomx.ErrNilMessage, err)
	assert.Equal(t, protomx.ErrNilMessage, protomx.Unmarshal(nil, nil))
	assert.True(t, errors.Is(pkgerrors.Wrap(err, "marshal"), protomx.ErrNilMessage))
	_, traced := protomx.ErrNilMessage.(interface{ StackTrace() pkgerrors.StackTrace })
	assert.True(t, traced)
}

func TestConvert(t *testing.T) {
	m := (&rpctest.Note{Text: "a", N: 1}).ToDynamic()
	n, err := protomx.Convert[rpctest.Note](m)
	require.NoError(t, err)
	assert.Equal(t, &rpctest.Note{Text: "a", N: 1}, n)
}

func TestCheckType(t *testing.T) {
	note := (&rpctest.Note{}).Descriptor()
	assert.NoError(t, protomx.CheckType(note, dynamic.New(note)))
	assert.Equal(t, protomx.ErrNilMessage, protomx.CheckType(note, nil))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, protomx.SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Equal(t, []bool{false, true}, protomx.SortedBoolKeys(map[bool]int{true: 1, false: 2}))
	assert.Equal(t, []bool{true}, protomx.SortedBoolKeys(map[bool]int{true: 1}))
}

func TestViolations(t *testing.T) {
	var vs protomx.Violations
	vs.String(protomx.Index("tags", 1), "\xff")
	vs.String("ok", "fine")
	vs.Message(protomx.Key("by_sku", "x"), &invalid{})
	err := vs.Err()

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var fe *protomx.FieldError
	require.True(t, errors.As(errs[0], &fe))
	assert.Equal(t, "tags[1]", fe.Path)
	require.True(t, errors.As(errs[1], &fe))
	assert.Equal(t, "by_sku[x].text", fe.Path)
}

func TestMarshalValidates(t *testing.T) {
	_, err := protomx.Marshal(&invalid{})
	var fe *protomx.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "text", fe.Path)
}

// invalid always fails validation on its text field.
type invalid struct {
	rpctest.Note
}

func (*invalid) Validate() error {
	var vs protomx.Violations
	vs.String("text", "\xff")
	return vs.Err()
}
