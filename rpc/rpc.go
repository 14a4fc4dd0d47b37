// Package rpc is the transport-neutral runtime behind generated service
// stubs. Stubs encode messages with the wire codec and move bytes through
// a Conn; a transport such as rpc/grpcconn owns framing, connections,
// deadlines and metadata.
package rpc

import (
	"context"
	"errors"

	"github.com/hysios/protomx/descriptor"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnimplemented is returned by the generated Unimplemented servers.
	ErrUnimplemented = status.Error(codes.Unimplemented, "method not implemented")
	// ErrStreamClosed is returned by Recv after Close.
	ErrStreamClosed = errors.New("rpc: stream closed")
)

// Conn is the client side of a transport.
type Conn interface {
	// Invoke performs a unary call.
	Invoke(ctx context.Context, method string, req []byte) ([]byte, error)
	// NewStream opens a streaming call. The stream is released by Close or
	// by cancelling ctx.
	NewStream(ctx context.Context, method string, desc StreamDesc) (RawStream, error)
}

type StreamDesc struct {
	ClientStreams bool
	ServerStreams bool
}

func streamDesc(c descriptor.MethodCardinality) StreamDesc {
	return StreamDesc{
		ClientStreams: c == descriptor.StreamUnary || c == descriptor.StreamStream,
		ServerStreams: c == descriptor.UnaryStream || c == descriptor.StreamStream,
	}
}

// RawStream is a client side stream of encoded messages.
type RawStream interface {
	Send(b []byte) error
	CloseSend() error
	// Recv returns io.EOF once the server has finished cleanly.
	Recv() ([]byte, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// ServerStream is the server side of one call.
type ServerStream interface {
	Context() context.Context
	// Recv returns io.EOF once the client has finished sending.
	Recv() ([]byte, error)
	Send(b []byte) error
}

// Handler serves one call of a method on impl.
type Handler func(impl any, stream ServerStream) error

type MethodDesc struct {
	Name        string
	Cardinality descriptor.MethodCardinality
	Handler     Handler
}

// Path is the routing key of m within service.
func (m *MethodDesc) Path(service string) string {
	return "/" + service + "/" + m.Name
}

// ServiceDesc is what generated Register functions publish.
type ServiceDesc struct {
	// Name is the fully-qualified service name.
	Name string
	// HandlerType is a nil pointer to the server interface, for
	// transports that check implementations.
	HandlerType any
	Methods     []MethodDesc
	// File is the schema file declaring the service.
	File string
}

type Registrar interface {
	RegisterService(desc *ServiceDesc, impl any)
}
