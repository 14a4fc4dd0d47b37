package descriptor_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/naming"
	"github.com/hysios/protomx/protofile"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"go.uber.org/multierr"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func compile(t *testing.T, files map[string]string) []*descriptorpb.FileDescriptorProto {
	t.Helper()
	var paths []string
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []*descriptorpb.FileDescriptorProto
	for _, p := range paths {
		fd, err := protofile.Parse(p, []byte(files[p]))
		require.NoError(t, err)
		out = append(out, fd)
	}
	return out
}

const shopProto = `syntax = "proto3";
package acme.shop;

// Order is a customer order.
message Order {
    message Line {
        string sku = 1;
        int32 qty = 2;
    }
    enum State {
        STATE_UNKNOWN = 0;
        OPEN = 1;
    }
    int64 id = 1;
    repeated Line lines = 2;
    State state = 3;
    map<string, Line> by_sku = 4;
    repeated int32 tags = 5;
    repeated string notes = 6;
    optional int32 priority = 7;
    oneof payment {
        string card = 8;
        Voucher voucher = 9;
    }
}

message Voucher {
    Order.Line line = 1;
    acme.shop.Order order = 2;
    .acme.shop.Voucher self = 3;
}

service Shop {
    rpc Place(Order) returns (Voucher);
    rpc Watch(Order) returns (stream Order.Line);
}
`

func TestLoadResolve(t *testing.T) {
	schema, err := descriptor.LoadFiles(compile(t, map[string]string{"shop.proto": shopProto}))
	require.NoError(t, err)

	order := schema.Message("acme.shop.Order")
	require.NotNil(t, order)
	assert.Equal(t, "Order is a customer order.", order.Comments)

	line := schema.Message(".acme.shop.Order.Line")
	require.NotNil(t, line)
	assert.Equal(t, order, line.Parent)

	lines := order.ByName("lines")
	assert.Equal(t, descriptor.MessageKind, lines.Kind)
	assert.Equal(t, line, lines.Message)
	assert.True(t, lines.IsList())
	assert.False(t, lines.IsPacked())

	state := order.ByName("state")
	assert.Equal(t, descriptor.EnumKind, state.Kind)
	assert.Equal(t, "acme.shop.Order.State", state.Enum.FullName)
	assert.False(t, state.HasPresence())

	bySku := order.ByName("by_sku")
	assert.True(t, bySku.IsMap())
	assert.Equal(t, descriptor.StringKind, bySku.MapKey().Kind)
	assert.Equal(t, line, bySku.MapValue().Message)
	assert.Equal(t, "bySku", bySku.JSONName)
	assert.Equal(t, bySku, order.ByJSONName("bySku"))

	assert.True(t, order.ByName("tags").IsPacked())
	assert.False(t, order.ByName("notes").IsPacked())

	priority := order.ByName("priority")
	assert.True(t, priority.HasPresence())
	assert.True(t, priority.Oneof.Synthetic)
	assert.Nil(t, priority.RealOneof())

	payment := order.Oneof("payment")
	require.NotNil(t, payment)
	assert.Len(t, payment.Fields, 2)
	assert.Len(t, order.RealOneofs(), 1)
	assert.True(t, order.ByName("card").HasPresence())

	voucher := schema.Message("acme.shop.Voucher")
	assert.Equal(t, line, voucher.ByName("line").Message)
	assert.Equal(t, order, voucher.ByName("order").Message)
	assert.Equal(t, voucher, voucher.ByName("self").Message)

	shop := schema.Service("acme.shop.Shop")
	require.NotNil(t, shop)
	assert.Equal(t, descriptor.UnaryUnary, shop.Methods[0].Cardinality())
	assert.Equal(t, descriptor.UnaryStream, shop.Methods[1].Cardinality())
	assert.Equal(t, line, shop.Methods[1].Output)
	assert.Equal(t, "/acme.shop.Shop/Place", shop.Methods[0].Path())

	// the file proto is normalized
	fp := schema.File("shop.proto").Proto
	assert.Equal(t, ".acme.shop.Order.Line", fp.GetMessageType()[1].GetField()[0].GetTypeName())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, fp.GetMessageType()[1].GetField()[0].GetType())
	assert.Equal(t, ".acme.shop.Order", fp.GetService()[0].GetMethod()[0].GetInputType())
}

func TestLoadProto2(t *testing.T) {
	schema, err := descriptor.LoadFiles(compile(t, map[string]string{"p2.proto": `syntax = "proto2";
message Legacy {
    optional int32 a = 1;
    repeated int32 b = 2;
    repeated int32 c = 3 [packed = true];
}`}))
	require.NoError(t, err)

	m := schema.Message("Legacy")
	assert.True(t, m.ByName("a").HasPresence())
	assert.False(t, m.ByName("b").IsPacked())
	assert.True(t, m.ByName("c").IsPacked())
}

func TestLoadSerialized(t *testing.T) {
	set := &descriptorpb.FileDescriptorSet{File: compile(t, map[string]string{"shop.proto": shopProto})}
	raw, err := proto.Marshal(set)
	require.NoError(t, err)

	schema, err := descriptor.Load(raw)
	require.NoError(t, err)
	assert.NotNil(t, schema.Message("acme.shop.Voucher"))

	_, err = descriptor.Load([]byte{0xff})
	assert.Error(t, err)
}

func TestLoadOrder(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; import "b.proto"; message A { B b = 1; }`,
		"b.proto": `syntax = "proto3"; import "c.proto"; message B { C c = 1; }`,
		"c.proto": `syntax = "proto3"; message C {}`,
	})
	schema, err := descriptor.LoadFiles(files)
	require.NoError(t, err)

	var paths []string
	for _, f := range schema.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"c.proto", "b.proto", "a.proto"}, paths)
	assert.Equal(t, schema.File("b.proto"), schema.File("a.proto").Imports[0])
}

func TestLoadCycle(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; import "b.proto";`,
		"b.proto": `syntax = "proto3"; import "a.proto";`,
	})
	_, err := descriptor.LoadFiles(files)

	var cycle *descriptor.CyclicImportError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a.proto", "b.proto", "a.proto"}, cycle.Cycle)
}

func TestLoadMissingImport(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; import "gone.proto";`,
	})
	_, err := descriptor.LoadFiles(files)

	var missing *descriptor.MissingImportError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "a.proto", missing.File)
	assert.Equal(t, "gone.proto", missing.Import)

	fallback := compile(t, map[string]string{"gone.proto": `syntax = "proto3"; message Gone {}`})
	schema, err := descriptor.LoadFiles(files, descriptor.WithFallback(fallback...))
	require.NoError(t, err)
	assert.NotNil(t, schema.Message("Gone"))
}

func TestLoadUnresolved(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; package p;
message A {
    Nope x = 1;
    p.Missing y = 2;
}`,
	})
	_, err := descriptor.LoadFiles(files)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	var unresolved *descriptor.UnresolvedTypeError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "Nope", unresolved.Ref)
	assert.Equal(t, "p.A", unresolved.Scope)
}

func TestLoadNestedShadowing(t *testing.T) {
	// Inner.Leaf must resolve inside Outer, never to the top-level Inner.
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3";
message Inner {}
message Outer {
    message Inner { message Leaf {} }
    Inner.Leaf leaf = 1;
    Inner inner = 2;
}`,
	})
	schema, err := descriptor.LoadFiles(files)
	require.NoError(t, err)

	outer := schema.Message("Outer")
	assert.Equal(t, "Outer.Inner.Leaf", outer.ByName("leaf").Message.FullName)
	assert.Equal(t, "Outer.Inner", outer.ByName("inner").Message.FullName)
}

func TestLoadPackagelessCollision(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; message Test {}`,
		"b.proto": `syntax = "proto3"; message Test {}`,
	})
	_, err := descriptor.LoadFiles(files)

	var collision *descriptor.NameCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "Test", collision.Name)
	assert.Equal(t, "a.proto", collision.First)
	assert.Equal(t, "b.proto", collision.Second)
}

func TestLoadEnums(t *testing.T) {
	files := compile(t, map[string]string{
		"e.proto": `syntax = "proto3";
enum Color {
    option allow_alias = true;
    RED = 0;
    CRIMSON = 0;
    BLUE = 2;
}
enum Bad {
    ONE = 1;
}`,
	})
	schema, err := descriptor.LoadFiles(files)
	require.NoError(t, err)

	color := schema.Enum("Color")
	assert.Equal(t, "RED", color.ByNumber(0).Name)
	assert.Equal(t, descriptor.EnumNumber(0), color.ByName("CRIMSON").Number)
	assert.Nil(t, color.ByNumber(1))
	assert.Equal(t, descriptor.EnumNumber(1), schema.Enum("Bad").Default())

	_, err = descriptor.LoadFiles(compile(t, map[string]string{
		"e.proto": `syntax = "proto3"; enum E { A = 0; B = 0; }`,
	}))
	var invalid *descriptor.InvalidSchemaError
	assert.True(t, errors.As(err, &invalid))
}

func TestLoadRepeatedWithoutOptions(t *testing.T) {
	schema, err := descriptor.LoadFiles(compile(t, map[string]string{"r.proto": `syntax = "proto3";
message R {
    repeated int32 xs = 1;
    repeated string names = 2;
}`}))
	require.NoError(t, err)

	m := schema.Message("R")
	assert.True(t, m.ByName("xs").IsList())
	assert.True(t, m.ByName("xs").IsPacked())
	assert.False(t, m.ByName("names").IsPacked())
}

func TestLoadNamedFieldKinds(t *testing.T) {
	schema, err := descriptor.LoadFiles(compile(t, map[string]string{"k.proto": `syntax = "proto3";
enum Color { RED = 0; }
message Inner {}
message Outer {
    Inner inner = 1;
    Color color = 2;
    double ratio = 3;
}`}))
	require.NoError(t, err)

	m := schema.Message("Outer")
	assert.Equal(t, descriptor.MessageKind, m.ByName("inner").Kind)
	assert.Equal(t, descriptor.EnumKind, m.ByName("color").Kind)
	assert.Equal(t, descriptor.DoubleKind, m.ByName("ratio").Kind)
}

func TestLoadInvalidFields(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"duplicate number", `syntax = "proto3"; message M { int32 a = 1; int32 b = 1; }`},
		{"reserved range", `syntax = "proto3"; message M { int32 a = 19000; }`},
		{"reserved range end", `syntax = "proto3"; message M { int32 a = 19999; }`},
		{"reserved range middle", `syntax = "proto3"; message M { int32 a = 19500; }`},
		{"zero number", `syntax = "proto3"; message M { int32 a = 0; }`},
		{"enum as message", `syntax = "proto3"; enum E { A = 0; } service S { rpc R(E) returns (E); }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := descriptor.LoadFiles(compile(t, map[string]string{"m.proto": tt.src}))
			assert.Error(t, err)
		})
	}
}

func TestNaming(t *testing.T) {
	files := compile(t, map[string]string{
		"n.proto": `syntax = "proto3";
package acme.v1;
message Foo_Bar {}
message Foo {
    message Bar {}
    enum Kind { KIND_UNKNOWN = 0; }
    string reset = 1;
    oneof choice {
        string text = 2;
        int32 num = 3;
    }
}
service Greeter {
    rpc say_hello(Foo) returns (Foo);
}`,
	})
	schema, err := descriptor.LoadFiles(files, descriptor.WithNaming(naming.Go))
	require.NoError(t, err)

	assert.Equal(t, "Foo_Bar", schema.Message("acme.v1.Foo_Bar").GoName)
	assert.Equal(t, "Foo_Bar_InFoo", schema.Message("acme.v1.Foo.Bar").GoName)
	assert.Equal(t, "Foo_Kind", schema.Enum("acme.v1.Foo.Kind").GoName)
	assert.Equal(t, "Foo_Kind_KIND_UNKNOWN", schema.Enum("acme.v1.Foo.Kind").Values[0].GoName)

	foo := schema.Message("acme.v1.Foo")
	assert.Equal(t, "Reset_", foo.ByName("reset").GoName)
	assert.Equal(t, "Choice", foo.Oneof("choice").GoName)
	assert.Equal(t, "Foo_Text", foo.ByName("text").WrapperName)
	assert.Equal(t, "SayHello", schema.Service("acme.v1.Greeter").Methods[0].GoName)

	// identical input, identical names
	again, err := descriptor.LoadFiles(files, descriptor.WithNaming(naming.Go))
	require.NoError(t, err)
	assert.Equal(t, "Foo_Bar_InFoo", again.Message("acme.v1.Foo.Bar").GoName)
}

func TestNamingCollision(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; message foo_bar {}`,
		"b.proto": `syntax = "proto3"; message FooBar {}`,
	})

	_, err := descriptor.LoadFiles(files)
	require.NoError(t, err)

	_, err = descriptor.LoadFiles(files, descriptor.WithNaming(naming.Go))
	var collision *descriptor.NameCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "FooBar", collision.Name)
	assert.Equal(t, "a.proto:foo_bar", collision.First)
	assert.Equal(t, "b.proto:FooBar", collision.Second)
}
