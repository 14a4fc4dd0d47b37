package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/jsonpb"
	"github.com/hysios/protomx/protofile"
	"github.com/hysios/protomx/wire"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/pluginpb"
)

const pingProto = `syntax = "proto3";
package ping;

message Ping {
    string text = 1;
    optional int32 n = 2;
}
`

func TestRunPlugin(t *testing.T) {
	fd, err := protofile.Parse("ping.proto", []byte(pingProto))
	require.NoError(t, err)

	resp := runPlugin(&pluginpb.CodeGeneratorRequest{
		FileToGenerate: []string{"ping.proto"},
		Parameter:      proto.String("validated_variant,import_prefix=example.com/api"),
		ProtoFile:      []*descriptorpb.FileDescriptorProto{fd},
	})
	require.Empty(t, resp.GetError())
	assert.Equal(t, uint64(pluginpb.CodeGeneratorResponse_FEATURE_PROTO3_OPTIONAL), resp.GetSupportedFeatures())
	require.Len(t, resp.GetFile(), 1)
	assert.Equal(t, "ping/ping.pb.go", resp.GetFile()[0].GetName())
	assert.Contains(t, resp.GetFile()[0].GetContent(), "func (x *Ping) Validate() error")
}

func TestRunPluginError(t *testing.T) {
	resp := runPlugin(&pluginpb.CodeGeneratorRequest{Parameter: proto.String("bogus")})
	assert.Contains(t, resp.GetError(), "bogus")
	assert.Empty(t, resp.GetFile())
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ping"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ping", "ping.proto"), []byte(pingProto), 0o644))

	set, targets, err := readInputs([]string{filepath.Join(dir, "ping", "ping.proto")}, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"ping/ping.proto"}, targets)
	require.Len(t, set.GetFile(), 1)
	assert.Equal(t, "ping/ping.proto", set.GetFile()[0].GetName())

	b, err := proto.Marshal(set)
	require.NoError(t, err)
	setPath := filepath.Join(dir, "set.binpb")
	require.NoError(t, os.WriteFile(setPath, b, 0o644))

	set, targets, err = readInputs([]string{setPath}, nil)
	require.NoError(t, err)
	assert.Nil(t, targets)
	assert.Len(t, set.GetFile(), 1)
}

func TestDecode(t *testing.T) {
	set, err := (&protofile.Compiler{Accessor: protofile.MapAccessor(map[string]string{"ping.proto": pingProto})}).Compile("ping.proto")
	require.NoError(t, err)
	schema := loadTestSchema(t, set)
	desc := schema.Message("ping.Ping")

	m := dynamic.New(desc)
	m.Set(desc.ByName("text"), dynamic.ValueOfString("hi"))
	one, err := wire.Marshal(m)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, decode(&out, bytes.NewReader(one), desc, jsonpb.MarshalOptions{}, false))
	assert.Equal(t, `{"text":"hi"}`+"\n", out.String())

	var stream []byte
	for i := 0; i < 2; i++ {
		b, err := wire.MarshalDelimited(m)
		require.NoError(t, err)
		stream = append(stream, b...)
	}
	out.Reset()
	require.NoError(t, decode(&out, bytes.NewReader(stream), desc, jsonpb.MarshalOptions{}, true))
	assert.Equal(t, 2, strings.Count(out.String(), `{"text":"hi"}`))
}

func loadTestSchema(t *testing.T, set *descriptorpb.FileDescriptorSet) *descriptor.Schema {
	t.Helper()
	s, err := descriptor.LoadFiles(set.GetFile())
	require.NoError(t, err)
	return s
}
