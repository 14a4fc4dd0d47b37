package wkt

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hysios/protomx/dynamic"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
)

func TestTable(t *testing.T) {
	table := Standard()

	e, ok := table.Lookup(".google.protobuf.Timestamp")
	require.True(t, ok)
	assert.Equal(t, Timestamp, e.Kind)
	assert.Equal(t, "time.Time", e.GoType)

	assert.Equal(t, Wrapper, table.Kind("google.protobuf.UInt64Value"))
	assert.Equal(t, None, table.Kind("acme.Thing"))

	for _, name := range []string{TimestampName, DurationName, StructName, ValueName, ListValueName, AnyName, EmptyName, FieldMaskName, "google.protobuf.BytesValue"} {
		assert.NotNil(t, table.Message(name), name)
	}
	assert.True(t, IsWellKnownFile("google/protobuf/struct.proto"))
	assert.False(t, IsWellKnownFile("acme.proto"))
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		secs  int64
		nanos int32
		want  string
	}{
		{1546344000, 0, "2019-01-01T12:00:00Z"},
		{0, 1e8, "1970-01-01T00:00:00.100Z"},
		{0, 1000, "1970-01-01T00:00:00.000001Z"},
		{0, 1, "1970-01-01T00:00:00.000000001Z"},
		{-1, 0, "1969-12-31T23:59:59Z"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := FormatTimestamp(tt.secs, tt.nanos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			secs, nanos, err := ParseTimestamp(got)
			require.NoError(t, err)
			assert.Equal(t, tt.secs, secs)
			assert.Equal(t, tt.nanos, nanos)
		})
	}

	_, err := FormatTimestamp(maxTimestampSeconds+1, 0)
	assert.Error(t, err)
	_, err = FormatTimestamp(0, -1)
	assert.Error(t, err)

	secs, _, err := ParseTimestamp("2019-01-01T13:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1546344000), secs)

	for _, bad := range []string{"", "2019-01-01", "2019-01-01T12:00:00", "yesterday"} {
		_, _, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		secs  int64
		nanos int32
		want  string
	}{
		{1, 0, "1s"},
		{0, 0, "0s"},
		{-1, -500000000, "-1.500s"},
		{0, -1000, "-0.000001s"},
		{3, 1, "3.000000001s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := FormatDuration(tt.secs, tt.nanos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			secs, nanos, err := ParseDuration(got)
			require.NoError(t, err)
			assert.Equal(t, tt.secs, secs)
			assert.Equal(t, tt.nanos, nanos)
		})
	}

	secs, nanos, err := ParseDuration(".5s")
	require.NoError(t, err)
	assert.Equal(t, int64(0), secs)
	assert.Equal(t, int32(5e8), nanos)

	for _, bad := range []string{"", "s", "1", "1.s2", "1.0000000001s", "-s", "1m", "+1s", "1e3s"} {
		_, _, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}

	_, err = FormatDuration(1, -1)
	assert.Error(t, err)
}

func TestNativeConversions(t *testing.T) {
	table := Standard()

	at := time.Date(2019, 1, 1, 12, 0, 0, 5, time.UTC)
	ts := FromTime(table.Message(TimestampName), at)
	assert.True(t, at.Equal(ToTime(ts)))

	d := FromDuration(table.Message(DurationName), -1500*time.Millisecond)
	secs, nanos := TimestampParts(d)
	assert.Equal(t, int64(-1), secs)
	assert.Equal(t, int32(-5e8), nanos)
	assert.Equal(t, -1500*time.Millisecond, ToDuration(d))

	w := Wrap(table.Message("google.protobuf.StringValue"), dynamic.ValueOfString("hi"))
	assert.Equal(t, "hi", Unwrap(w).String())
}

func TestStruct(t *testing.T) {
	table := Standard()
	in := map[string]any{
		"name":  "x",
		"n":     2.5,
		"ok":    true,
		"none":  nil,
		"list":  []any{1.0, "a"},
		"inner": map[string]any{"k": "v"},
	}
	s, err := NewStruct(table.Message(StructName), in)
	require.NoError(t, err)

	out := StructToMap(s)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("struct mismatch (-want +got):\n%s", diff)
	}

	_, err = NewStruct(table.Message(StructName), map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
}
