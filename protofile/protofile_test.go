package protofile

import (
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"google.golang.org/protobuf/types/descriptorpb"
)

const helloProto = `syntax = "proto3";

package hello;

option go_package = "github.com/hysios/protomx/example/hello;hello";

import "google/protobuf/timestamp.proto";

// HelloService greets.
service HelloService {
    rpc Hello(HelloRequest) returns (HelloResponse);
    rpc Chat(stream HelloRequest) returns (stream HelloResponse) {
        option deprecated = true;
    }
}

message HelloRequest {
    string say = 1;
    optional int32 times = 2;
    map<string, int64> counts = 3;
    oneof target {
        string name = 4;
        int32 id = 5;
    }
    repeated int32 codes = 6 [packed = false];
    reserved 10 to 12, 20;
    reserved "old";
}

message HelloResponse {
    enum Mood {
        option allow_alias = true;
        MOOD_UNKNOWN = 0;
        HAPPY = 1;
        GLAD = 1;
    }
    string message = 1 [json_name = "msg"];
    Mood mood = 2;
    google.protobuf.Timestamp at = 3;
}
`

func TestParse(t *testing.T) {
	fd, err := Parse("hello.proto", []byte(helloProto))
	require.NoError(t, err)
	t.Logf("file % #v", pretty.Formatter(fd))

	assert.Equal(t, "hello", fd.GetPackage())
	assert.Equal(t, "proto3", fd.GetSyntax())
	assert.Equal(t, "github.com/hysios/protomx/example/hello;hello", fd.GetOptions().GetGoPackage())
	assert.Equal(t, []string{"google/protobuf/timestamp.proto"}, fd.GetDependency())

	req := fd.GetMessageType()[0]
	assert.Equal(t, "HelloRequest", req.GetName())
	assert.Equal(t, "say", req.GetField()[0].GetName())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_STRING, req.GetField()[0].GetType())

	times := req.GetField()[1]
	assert.True(t, times.GetProto3Optional())
	assert.Equal(t, int32(1), times.GetOneofIndex())
	assert.Equal(t, "_times", req.GetOneofDecl()[1].GetName())
	assert.Equal(t, "target", req.GetOneofDecl()[0].GetName())

	counts := req.GetField()[2]
	assert.Equal(t, descriptorpb.FieldDescriptorProto_LABEL_REPEATED, counts.GetLabel())
	assert.Equal(t, "CountsEntry", counts.GetTypeName())
	entry := req.GetNestedType()[0]
	assert.True(t, entry.GetOptions().GetMapEntry())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_INT64, entry.GetField()[1].GetType())

	assert.Equal(t, int32(0), req.GetField()[3].GetOneofIndex())
	assert.Equal(t, int32(0), req.GetField()[4].GetOneofIndex())
	assert.False(t, req.GetField()[5].GetOptions().GetPacked())

	assert.Equal(t, int32(10), req.GetReservedRange()[0].GetStart())
	assert.Equal(t, int32(13), req.GetReservedRange()[0].GetEnd())
	assert.Equal(t, int32(21), req.GetReservedRange()[1].GetEnd())
	assert.Equal(t, []string{"old"}, req.GetReservedName())

	resp := fd.GetMessageType()[1]
	assert.Equal(t, "msg", resp.GetField()[0].GetJsonName())
	assert.Equal(t, "Mood", resp.GetField()[1].GetTypeName())
	assert.Equal(t, "google.protobuf.Timestamp", resp.GetField()[2].GetTypeName())
	assert.True(t, resp.GetEnumType()[0].GetOptions().GetAllowAlias())
	assert.Len(t, resp.GetEnumType()[0].GetValue(), 3)

	svc := fd.GetService()[0]
	assert.Equal(t, "HelloService", svc.GetName())
	assert.False(t, svc.GetMethod()[0].GetClientStreaming())
	assert.True(t, svc.GetMethod()[1].GetClientStreaming())
	assert.True(t, svc.GetMethod()[1].GetServerStreaming())
	assert.True(t, svc.GetMethod()[1].GetOptions().GetDeprecated())

	var found bool
	for _, loc := range fd.GetSourceCodeInfo().GetLocation() {
		if len(loc.Path) == 2 && loc.Path[0] == 6 {
			assert.Equal(t, "HelloService greets.", loc.GetLeadingComments())
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompile(t *testing.T) {
	c := &Compiler{Accessor: MapAccessor(map[string]string{
		"a.proto": `syntax = "proto3"; import "b.proto"; import "google/protobuf/empty.proto"; message A { B b = 1; }`,
		"b.proto": `syntax = "proto3"; message B {}`,
	})}

	set, err := c.Compile("a.proto")
	require.NoError(t, err)
	require.Len(t, set.GetFile(), 2)
	assert.Equal(t, "a.proto", set.GetFile()[0].GetName())
	assert.Equal(t, "b.proto", set.GetFile()[1].GetName())

	_, err = (&Compiler{Accessor: MapAccessor(map[string]string{
		"a.proto": `syntax = "proto3"; import "missing.proto";`,
	})}).Compile("a.proto")
	assert.Error(t, err)
}

func TestMapEntryName(t *testing.T) {
	assert.Equal(t, "MyMapEntry", mapEntryName("my_map"))
	assert.Equal(t, "CountsEntry", mapEntryName("counts"))
}
