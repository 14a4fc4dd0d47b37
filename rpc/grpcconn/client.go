package grpcconn

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_opentracing "github.com/grpc-ecosystem/go-grpc-middleware/tracing/opentracing"
	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type DialOption struct {
	Logger             *zap.Logger
	unaryInterceptors  []grpc.UnaryClientInterceptor
	streamInterceptors []grpc.StreamClientInterceptor
	dialOptions        []grpc.DialOption
}

type DialOptionFunc func(*DialOption)

func WithClientLogger(l *zap.Logger) DialOptionFunc {
	return func(o *DialOption) {
		o.Logger = l
	}
}

func WithUnaryClientInterceptor(interceptors ...grpc.UnaryClientInterceptor) DialOptionFunc {
	return func(o *DialOption) {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
	}
}

func WithStreamClientInterceptor(interceptors ...grpc.StreamClientInterceptor) DialOptionFunc {
	return func(o *DialOption) {
		o.streamInterceptors = append(o.streamInterceptors, interceptors...)
	}
}

func WithDialOptions(dialOptions ...grpc.DialOption) DialOptionFunc {
	return func(o *DialOption) {
		o.dialOptions = append(o.dialOptions, dialOptions...)
	}
}

// Conn is an rpc.Conn over a grpc client connection.
type Conn struct {
	cc grpc.ClientConnInterface
	// owned is set when Dial created the connection
	owned *grpc.ClientConn
}

var _ rpc.Conn = (*Conn)(nil)

// NewConn wraps an existing connection. Closing the Conn leaves cc open.
func NewConn(cc grpc.ClientConnInterface) *Conn {
	return &Conn{cc: cc}
}

// Dial connects to target without transport security, tracing and logging
// every call.
func Dial(target string, optfns ...DialOptionFunc) (*Conn, error) {
	var opts DialOption
	for _, fn := range optfns {
		fn(&opts)
	}
	log := logger.Named(opts.Logger, "grpcconn.client")

	unary := append([]grpc.UnaryClientInterceptor{
		grpc_opentracing.UnaryClientInterceptor(),
		grpc_zap.UnaryClientInterceptor(log),
	}, opts.unaryInterceptors...)
	stream := append([]grpc.StreamClientInterceptor{
		grpc_opentracing.StreamClientInterceptor(),
		grpc_zap.StreamClientInterceptor(log),
	}, opts.streamInterceptors...)

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(unary...)),
		grpc.WithStreamInterceptor(grpc_middleware.ChainStreamClient(stream...)),
	}, opts.dialOptions...)

	cc, err := grpc.Dial(target, dialOptions...)
	if err != nil {
		return nil, err
	}
	return &Conn{cc: cc, owned: cc}, nil
}

func (c *Conn) Invoke(ctx context.Context, method string, req []byte) ([]byte, error) {
	var resp []byte
	if err := c.cc.Invoke(ctx, method, req, &resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Conn) NewStream(ctx context.Context, method string, desc rpc.StreamDesc) (rpc.RawStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.cc.NewStream(ctx, &grpc.StreamDesc{
		ClientStreams: desc.ClientStreams,
		ServerStreams: desc.ServerStreams,
	}, method, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		cancel()
		return nil, err
	}
	return &clientStream{cs: cs, cancel: cancel}, nil
}

func (c *Conn) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

type clientStream struct {
	cs     grpc.ClientStream
	cancel context.CancelFunc
}

// Send returns io.EOF once the server has finished; the status is then
// reported by Recv.
func (s *clientStream) Send(b []byte) error { return s.cs.SendMsg(b) }

func (s *clientStream) CloseSend() error { return s.cs.CloseSend() }

func (s *clientStream) Recv() ([]byte, error) {
	var b []byte
	if err := s.cs.RecvMsg(&b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *clientStream) Close() error {
	s.cancel()
	return nil
}
