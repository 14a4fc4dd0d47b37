package gen_test

import (
	"errors"
	"go/parser"
	"go/token"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/gen"
	"github.com/hysios/protomx/protofile"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
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

import "google/protobuf/timestamp.proto";
import "google/protobuf/wrappers.proto";
import "google/protobuf/struct.proto";

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
    optional int32 priority = 7;
    oneof payment {
        string card = 8;
        Voucher voucher = 9;
    }
    google.protobuf.Timestamp created = 10;
    google.protobuf.StringValue note = 11;
    google.protobuf.Struct extra = 12;
    map<bool, string> flags = 13;
    bytes blob = 14;
}

message Voucher {
    string code = 1 [deprecated = true];
}

service Shop {
    rpc Get(Order) returns (Order);
    rpc Watch(Order) returns (stream Order);
    rpc Upload(stream Order.Line) returns (Order);
    rpc Sync(stream Order) returns (stream Order);
}
`

var blanks = regexp.MustCompile(`[ \t]+`)

// squash collapses the column alignment gofmt adds.
func squash(src []byte) string {
	return blanks.ReplaceAllString(string(src), " ")
}

func generate(t *testing.T, files map[string]string, opts gen.Options) map[string]string {
	t.Helper()
	out, err := gen.GenerateFiles(compile(t, files), opts)
	require.NoError(t, err)

	srcs := make(map[string]string)
	for _, f := range out {
		_, err := parser.ParseFile(token.NewFileSet(), f.Path, f.Content, parser.ParseComments)
		require.NoError(t, err, "%s:\n%s", f.Path, f.Content)
		srcs[f.Path] = squash(f.Content)
	}
	return srcs
}

func TestGenerate(t *testing.T) {
	srcs := generate(t, map[string]string{"shop.proto": shopProto}, gen.Options{ImportPrefix: "example.com/api"})
	require.Len(t, srcs, 1)
	src, ok := srcs["acme/shop/shop.pb.go"]
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(src, "// Code generated by protomx. DO NOT EDIT."))
	assert.Contains(t, src, "// source: shop.proto")
	assert.Contains(t, src, "package shop")
	assert.Contains(t, src, "// Order is a customer order.")

	for _, want := range []string{
		"Id int64",
		"Lines []*Order_Line",
		"State Order_State",
		"BySku map[string]*Order_Line",
		"Priority *int32",
		"Payment isOrder_Payment",
		"Created *time.Time",
		"Note *string",
		"Extra *dynamic.Message",
		"Flags map[bool]string",
		"Blob []byte",
		"type Order_Card struct",
		"func (*Order_Voucher) isOrder_Payment() {}",
		"Order_State_OPEN Order_State = 1",
		"protomx.SortedKeys(x.BySku)",
		"protomx.SortedBoolKeys(x.Flags)",
		"// Deprecated: Marked as deprecated in shop.proto.",
	} {
		assert.Contains(t, src, want)
	}
	assert.NotContains(t, src, "Validate() error")
}

func TestGenerateServices(t *testing.T) {
	src := generate(t, map[string]string{"shop.proto": shopProto}, gen.Options{})["acme/shop/shop.pb.go"]

	for _, want := range []string{
		"type ShopClient interface",
		"func NewShopClient(conn rpc.Conn) ShopClient",
		"Get(ctx context.Context, in *Order) (*Order, error)",
		"Watch(ctx context.Context, in *Order) (*rpc.Stream[*Order], error)",
		"Upload(ctx context.Context, in <-chan *Order_Line) (*Order, error)",
		"Sync(ctx context.Context, in <-chan *Order) (*rpc.Stream[*Order], error)",
		"type ShopServer interface",
		"Watch(ctx context.Context, in *Order, out rpc.Sender[*Order]) error",
		"Upload(ctx context.Context, in rpc.Receiver[*Order_Line]) (*Order, error)",
		"type UnimplementedShopServer struct{}",
		`"/acme.shop.Shop/Sync"`,
		"func RegisterShopServer(r rpc.Registrar, s ShopServer)",
		"descriptor.StreamStream",
	} {
		assert.Contains(t, src, want)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	files := map[string]string{"shop.proto": shopProto}
	opts := gen.Options{ValidatedVariant: true}
	a := generate(t, files, opts)
	b := generate(t, files, opts)
	assert.Equal(t, a, b)
}

func TestValidatedVariant(t *testing.T) {
	src := generate(t, map[string]string{"shop.proto": shopProto}, gen.Options{ValidatedVariant: true})["acme/shop/shop.pb.go"]

	assert.Contains(t, src, "func (x *Order) Validate() error")
	assert.Contains(t, src, `vs.Enum("state", x.State.Descriptor(), int32(x.State))`)
	assert.Contains(t, src, `vs.Message(protomx.Key("by_sku", k), x.BySku[k])`)
	assert.Contains(t, src, `vs.String("card", o.Card)`)
}

func TestWellKnownTypes(t *testing.T) {
	srcs := generate(t, map[string]string{"shop.proto": shopProto}, gen.Options{IncludeWellKnownTypes: true})

	var paths []string
	for p := range srcs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"acme/shop/shop.pb.go", "google/protobuf/protobuf.pb.go"}, paths)

	src := srcs["acme/shop/shop.pb.go"]
	assert.Contains(t, src, "Created *protobuf.Timestamp")
	assert.Contains(t, src, `"google/protobuf"`)
	assert.NotContains(t, src, `"time"`)
}

func TestWellKnownRPCTypes(t *testing.T) {
	srcs := generate(t, map[string]string{"ping.proto": `syntax = "proto3";
package ping;
import "google/protobuf/empty.proto";
service Ping {
    rpc Ping(google.protobuf.Empty) returns (google.protobuf.Empty);
}
`}, gen.Options{})

	require.Contains(t, srcs, "google/protobuf/protobuf.pb.go")
	assert.Contains(t, srcs["ping/ping.pb.go"], "(ctx context.Context, in *protobuf.Empty) (*protobuf.Empty, error)")
}

func TestPackagelessMerge(t *testing.T) {
	files := map[string]string{
		"a.proto": `syntax = "proto3"; message A { string s = 1; }`,
		"b.proto": `syntax = "proto3"; message B { A a = 1; }`,
	}
	srcs := generate(t, files, gen.Options{ImportPrefix: "example.com/root"})
	require.Len(t, srcs, 1)

	src := srcs["root.pb.go"]
	assert.Contains(t, src, "package root")
	assert.Contains(t, src, "// source: a.proto")
	assert.Contains(t, src, "// source: b.proto")
	assert.Contains(t, src, "A *A")

	srcs = generate(t, files, gen.Options{RootPackage: "model"})
	assert.Contains(t, srcs, "model.pb.go")
}

func TestNameCollision(t *testing.T) {
	files := compile(t, map[string]string{
		"a.proto": `syntax = "proto3"; package x.a; option go_package = "example.com/m;m"; message Thing {}`,
		"b.proto": `syntax = "proto3"; package x.b; option go_package = "example.com/m;m"; message Thing {}`,
	})
	_, err := gen.GenerateFiles(files, gen.Options{})

	var nc *descriptor.NameCollisionError
	require.True(t, errors.As(err, &nc), "got %v", err)
	assert.Equal(t, "Thing", nc.Name)
	assert.Contains(t, err.Error(), "a.proto")
	assert.Contains(t, err.Error(), "b.proto")
}

func TestTargets(t *testing.T) {
	files := map[string]string{
		"a/a.proto": `syntax = "proto3"; package a; message A {}`,
		"b/b.proto": `syntax = "proto3"; package b; import "a/a.proto"; message B { a.A a = 1; }`,
	}
	srcs := generate(t, files, gen.Options{Targets: []string{"b/b.proto"}, ImportPrefix: "example.com/api"})
	require.Len(t, srcs, 1)

	src := srcs["b/b.pb.go"]
	assert.Contains(t, src, `"example.com/api/a"`)
	assert.Contains(t, src, "A *a.A")

	_, err := gen.GenerateFiles(compile(t, files), gen.Options{Targets: []string{"missing.proto"}})
	assert.Error(t, err)
}
