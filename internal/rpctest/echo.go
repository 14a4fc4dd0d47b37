// Package rpctest holds an echo service written the way the generator
// emits stubs, shared by the transport tests.
package rpctest

import (
	"context"
	"io"
	"strings"

	"github.com/hysios/protomx"
	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"github.com/hysios/protomx/protofile"
	"github.com/hysios/protomx/rpc"
	"google.golang.org/protobuf/types/descriptorpb"
)

const proto = `syntax = "proto3";
package rt;

message Note {
    string text = 1;
    int32 n = 2;
}

service Echo {
    rpc Say(Note) returns (Note);
    rpc Count(Note) returns (stream Note);
    rpc Sum(stream Note) returns (Note);
    rpc Chat(stream Note) returns (stream Note);
}
`

var noteDesc = func() *descriptor.Message {
	fd, err := protofile.Parse("rt.proto", []byte(proto))
	if err != nil {
		panic(err)
	}
	s, err := descriptor.LoadFiles([]*descriptorpb.FileDescriptorProto{fd})
	if err != nil {
		panic(err)
	}
	return s.Message("rt.Note")
}()

type Note struct {
	Text string
	N    int32
}

func (x *Note) Descriptor() *descriptor.Message { return noteDesc }

func (x *Note) ToDynamic() *dynamic.Message {
	m := dynamic.New(noteDesc)
	if x == nil {
		return m
	}
	m.Set(noteDesc.Fields[0], dynamic.ValueOfString(x.Text))
	m.Set(noteDesc.Fields[1], dynamic.ValueOfInt32(x.N))
	return m
}

func (x *Note) FromDynamic(m *dynamic.Message) error {
	if err := protomx.CheckType(noteDesc, m); err != nil {
		return err
	}
	x.Text = m.Get(noteDesc.Fields[0]).String()
	x.N = int32(m.Get(noteDesc.Fields[1]).Int())
	return nil
}

type EchoServer interface {
	Say(ctx context.Context, in *Note) (*Note, error)
	Count(ctx context.Context, in *Note, out rpc.Sender[*Note]) error
	Sum(ctx context.Context, in rpc.Receiver[*Note]) (*Note, error)
	Chat(ctx context.Context, in rpc.Receiver[*Note], out rpc.Sender[*Note]) error
}

var EchoDesc = rpc.ServiceDesc{
	Name:        "rt.Echo",
	HandlerType: (*EchoServer)(nil),
	File:        "rt.proto",
	Methods: []rpc.MethodDesc{
		{
			Name:        "Say",
			Cardinality: descriptor.UnaryUnary,
			Handler: rpc.UnaryHandler[Note](func(impl any, ctx context.Context, in *Note) (*Note, error) {
				return impl.(EchoServer).Say(ctx, in)
			}),
		},
		{
			Name:        "Count",
			Cardinality: descriptor.UnaryStream,
			Handler: rpc.UnaryStreamHandler[Note](func(impl any, ctx context.Context, in *Note, out rpc.Sender[*Note]) error {
				return impl.(EchoServer).Count(ctx, in, out)
			}),
		},
		{
			Name:        "Sum",
			Cardinality: descriptor.StreamUnary,
			Handler: rpc.StreamUnaryHandler[Note](func(impl any, ctx context.Context, in rpc.Receiver[*Note]) (*Note, error) {
				return impl.(EchoServer).Sum(ctx, in)
			}),
		},
		{
			Name:        "Chat",
			Cardinality: descriptor.StreamStream,
			Handler: rpc.StreamStreamHandler[Note](func(impl any, ctx context.Context, in rpc.Receiver[*Note], out rpc.Sender[*Note]) error {
				return impl.(EchoServer).Chat(ctx, in, out)
			}),
		},
	},
}

// Echo upper-cases Say requests, counts N notes for Count (forever when
// N is negative), sums N over Sum and echoes Chat notes with a "!".
// An empty Say text answers rpc.ErrUnimplemented and "panic" panics.
type Echo struct {
	// Released is closed when a Count handler stops because its stream
	// went away.
	Released chan struct{}
}

func NewEcho() *Echo {
	return &Echo{Released: make(chan struct{})}
}

func (e *Echo) Say(ctx context.Context, in *Note) (*Note, error) {
	switch in.Text {
	case "panic":
		panic("boom")
	case "":
		return nil, rpc.ErrUnimplemented
	}
	return &Note{Text: strings.ToUpper(in.Text), N: in.N + 1}, nil
}

func (e *Echo) Count(ctx context.Context, in *Note, out rpc.Sender[*Note]) error {
	for i := int32(0); in.N < 0 || i < in.N; i++ {
		if err := out.Send(&Note{Text: in.Text, N: i}); err != nil {
			close(e.Released)
			return err
		}
	}
	return nil
}

func (e *Echo) Sum(ctx context.Context, in rpc.Receiver[*Note]) (*Note, error) {
	var total int32
	for {
		n, err := in.Recv()
		if err == io.EOF {
			return &Note{Text: "sum", N: total}, nil
		}
		if err != nil {
			return nil, err
		}
		total += n.N
	}
}

func (e *Echo) Chat(ctx context.Context, in rpc.Receiver[*Note], out rpc.Sender[*Note]) error {
	for {
		n, err := in.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := out.Send(&Note{Text: n.Text + "!", N: n.N}); err != nil {
			return err
		}
	}
}

// Notes returns a closed channel holding one note per n.
func Notes(ns ...int32) <-chan *Note {
	ch := make(chan *Note, len(ns))
	for _, n := range ns {
		ch <- &Note{Text: "n", N: n}
	}
	close(ch)
	return ch
}
