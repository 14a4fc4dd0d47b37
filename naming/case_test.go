package naming

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/tj/assert"
)

func TestGoCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foo_bar", "FooBar"},
		{"FooBar", "FooBar"},
		{"foo", "Foo"},
		{"_foo", "XFoo"},
		{"foo_1", "Foo_1"},
		{"foo1bar", "Foo1Bar"},
		{"HTTPServer", "HTTPServer"},
		{"Outer.inner", "OuterInner"},
		{"Outer.Inner", "Outer_Inner"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, GoCamelCase(tt.in))
		})
	}
}

func TestConventionPascal(t *testing.T) {
	assert.Equal(t, "FooBar", Go.Pascal("foo_bar"))
	assert.Equal(t, "FooBar", Strcase.Pascal("foo_bar"))
	assert.Equal(t, "HttpServer", Strcase.Pascal("http_server"))
	assert.Equal(t, "Type", Go.Pascal("type"))
	assert.Equal(t, "type_", Sanitize("type"))
	assert.Equal(t, "_1st", Sanitize("1st"))
}

func TestParseConvention(t *testing.T) {
	c, err := ParseConvention("")
	assert.NoError(t, err)
	assert.Equal(t, Go, c)

	c, err = ParseConvention("strcase")
	assert.NoError(t, err)
	assert.Equal(t, Strcase, c)

	_, err = ParseConvention("kebab")
	assert.EqualError(t, err, `naming: unknown convention "kebab"`)
	_, traced := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, traced)
}

func TestJSONName(t *testing.T) {
	assert.Equal(t, "fooBar", JSONName("foo_bar"))
	assert.Equal(t, "fooBarBaz", JSONName("foo_bar_baz"))
	assert.Equal(t, "value", JSONName("value"))
	assert.Equal(t, "foo_bar", SnakeName("fooBar"))
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "v1", PackageName("acme.api.v1"))
	assert.Equal(t, "hello", PackageName("hello"))
	assert.Equal(t, "type_", PackageName("acme.type"))
}

func TestScope(t *testing.T) {
	s := NewScope("Reset")
	_, ok := s.Claim("Foo", "a.proto:Foo")
	assert.True(t, ok)

	_, ok = s.Claim("Foo", "a.proto:Foo")
	assert.True(t, ok)

	prev, ok := s.Claim("Foo", "b.proto:Foo")
	assert.False(t, ok)
	assert.Equal(t, "a.proto:Foo", prev)

	_, ok = s.Claim("Reset", "c.proto:Reset")
	assert.False(t, ok)

	assert.Equal(t, "_InOuterMid", NestedSuffix(Go, []string{"Outer", "mid"}))
}
