package main

import (
	"io"
	"os"

	"github.com/hysios/protomx/config"
	"github.com/hysios/protomx/gen"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/pluginpb"
)

func pluginCmd() *cli.Command {
	return &cli.Command{
		Name:  "plugin",
		Usage: "run as a protoc plugin: CodeGeneratorRequest on stdin, response on stdout",
		Action: func(c *cli.Context) error {
			in, err := io.ReadAll(os.Stdin)
			if err != nil {
				return errors.Wrap(err, "read request")
			}
			var req pluginpb.CodeGeneratorRequest
			if err := proto.Unmarshal(in, &req); err != nil {
				return errors.Wrap(err, "decode request")
			}

			out, err := proto.Marshal(runPlugin(&req))
			if err != nil {
				return errors.Wrap(err, "encode response")
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

// runPlugin reports generation failures inside the response, the way
// protoc expects.
func runPlugin(req *pluginpb.CodeGeneratorRequest) *pluginpb.CodeGeneratorResponse {
	resp := &pluginpb.CodeGeneratorResponse{
		SupportedFeatures: proto.Uint64(uint64(pluginpb.CodeGeneratorResponse_FEATURE_PROTO3_OPTIONAL)),
	}
	fail := func(err error) *pluginpb.CodeGeneratorResponse {
		resp.Error = proto.String(err.Error())
		return resp
	}

	opts, err := config.ParseOptions(req.GetParameter())
	if err != nil {
		return fail(err)
	}
	if len(opts.Targets) == 0 {
		opts.Targets = req.GetFileToGenerate()
	}

	files, err := gen.GenerateFiles(req.GetProtoFile(), opts)
	if err != nil {
		return fail(err)
	}
	for _, f := range files {
		resp.File = append(resp.File, &pluginpb.CodeGeneratorResponse_File{
			Name:    proto.String(f.Path),
			Content: proto.String(string(f.Content)),
		})
	}
	return resp
}
