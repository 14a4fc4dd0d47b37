package grpcconn

import (
	"context"
	"io"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpc_opentracing "github.com/grpc-ecosystem/go-grpc-middleware/tracing/opentracing"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/logger"
	"github.com/hysios/protomx/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ServerOption struct {
	Logger *zap.Logger
	// Registerer receives the server's request metrics. Metrics are still
	// collected when it is nil, just not exported.
	Registerer prometheus.Registerer

	unaryInterceptors  []grpc.UnaryServerInterceptor
	streamInterceptors []grpc.StreamServerInterceptor
	grpcOptions        []grpc.ServerOption
}

type ServerOptionFunc func(*ServerOption) error

func WithLogger(l *zap.Logger) ServerOptionFunc {
	return func(o *ServerOption) error {
		o.Logger = l
		return nil
	}
}

func WithRegisterer(r prometheus.Registerer) ServerOptionFunc {
	return func(o *ServerOption) error {
		o.Registerer = r
		return nil
	}
}

func WithUnaryServerInterceptor(interceptors ...grpc.UnaryServerInterceptor) ServerOptionFunc {
	return func(o *ServerOption) error {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
		return nil
	}
}

func WithStreamServerInterceptor(interceptors ...grpc.StreamServerInterceptor) ServerOptionFunc {
	return func(o *ServerOption) error {
		o.streamInterceptors = append(o.streamInterceptors, interceptors...)
		return nil
	}
}

func WithServerOptions(opts ...grpc.ServerOption) ServerOptionFunc {
	return func(o *ServerOption) error {
		o.grpcOptions = append(o.grpcOptions, opts...)
		return nil
	}
}

// Server hosts rpc services on a grpc server. It is an rpc.Registrar.
type Server struct {
	Name string

	opts       ServerOption
	grpcserver *grpc.Server
	metrics    *grpc_prometheus.ServerMetrics
	logger     *zap.Logger
}

var _ rpc.Registrar = (*Server)(nil)

func NewServer(name string, optfns ...ServerOptionFunc) *Server {
	var opts ServerOption
	for _, fn := range optfns {
		if err := fn(&opts); err != nil {
			panic(err)
		}
	}

	s := &Server{
		Name:    name,
		opts:    opts,
		metrics: grpc_prometheus.NewServerMetrics(),
		logger:  logger.Named(opts.Logger, "grpcconn.server"),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.metrics)
	}
	s.grpcserver = grpc.NewServer(s.buildGrpcOptions()...)
	return s
}

func (s *Server) recoverFunc(p any) error {
	s.logger.Error("panic in handler", zap.Any("panic", p), zap.Stack("stack"))
	return status.Errorf(codes.Internal, "rpc: panic in handler: %v", p)
}

func (s *Server) buildGrpcOptions() []grpc.ServerOption {
	unary := append([]grpc.UnaryServerInterceptor{
		grpc_ctxtags.UnaryServerInterceptor(),
		grpc_opentracing.UnaryServerInterceptor(),
		s.metrics.UnaryServerInterceptor(),
		grpc_zap.UnaryServerInterceptor(s.logger),
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(s.recoverFunc)),
	}, s.opts.unaryInterceptors...)

	stream := append([]grpc.StreamServerInterceptor{
		grpc_ctxtags.StreamServerInterceptor(),
		grpc_opentracing.StreamServerInterceptor(),
		s.metrics.StreamServerInterceptor(),
		grpc_zap.StreamServerInterceptor(s.logger),
		grpc_recovery.StreamServerInterceptor(grpc_recovery.WithRecoveryHandler(s.recoverFunc)),
	}, s.opts.streamInterceptors...)

	return append([]grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(unary...)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(stream...)),
	}, s.opts.grpcOptions...)
}

// RegisterService panics when desc is already registered or impl does not
// implement desc.HandlerType.
func (s *Server) RegisterService(desc *rpc.ServiceDesc, impl any) {
	s.grpcserver.RegisterService(ServiceDesc(desc), impl)
	s.logger.Debug("register service", zap.String("service", desc.Name))
}

// ServiceDesc converts desc for grpc. Unary methods go through grpc's
// unary path so unary interceptors see them.
func ServiceDesc(desc *rpc.ServiceDesc) *grpc.ServiceDesc {
	gd := &grpc.ServiceDesc{
		ServiceName: desc.Name,
		HandlerType: desc.HandlerType,
		Metadata:    desc.File,
	}
	if gd.HandlerType == nil {
		gd.HandlerType = (*any)(nil)
	}

	for i := range desc.Methods {
		md := &desc.Methods[i]
		if md.Cardinality == descriptor.UnaryUnary {
			gd.Methods = append(gd.Methods, grpc.MethodDesc{
				MethodName: md.Name,
				Handler:    unaryHandler(desc.Name, md),
			})
			continue
		}
		gd.Streams = append(gd.Streams, grpc.StreamDesc{
			StreamName:    md.Name,
			Handler:       streamHandler(md),
			ClientStreams: md.Cardinality == descriptor.StreamUnary || md.Cardinality == descriptor.StreamStream,
			ServerStreams: md.Cardinality == descriptor.UnaryStream || md.Cardinality == descriptor.StreamStream,
		})
	}
	return gd
}

func unaryHandler(service string, md *rpc.MethodDesc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		var req []byte
		if err := dec(&req); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			u := &unaryStream{ctx: ctx, req: req.([]byte)}
			if err := md.Handler(srv, u); err != nil {
				return nil, err
			}
			if !u.sent {
				return nil, status.Errorf(codes.Internal, "rpc: %s finished without a response", md.Name)
			}
			return u.resp, nil
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: md.Path(service)}
		return interceptor(ctx, req, info, call)
	}
}

// unaryStream feeds one decoded request to a handler and keeps its reply.
type unaryStream struct {
	ctx  context.Context
	req  []byte
	read bool
	resp []byte
	sent bool
}

func (u *unaryStream) Context() context.Context { return u.ctx }

func (u *unaryStream) Recv() ([]byte, error) {
	if u.read {
		return nil, io.EOF
	}
	u.read = true
	return u.req, nil
}

func (u *unaryStream) Send(b []byte) error {
	if u.sent {
		return status.Error(codes.Internal, "rpc: unary method sent twice")
	}
	u.resp, u.sent = b, true
	return nil
}

func streamHandler(md *rpc.MethodDesc) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		return md.Handler(srv, serverStream{stream})
	}
}

type serverStream struct {
	ss grpc.ServerStream
}

func (s serverStream) Context() context.Context { return s.ss.Context() }

func (s serverStream) Recv() ([]byte, error) {
	var b []byte
	if err := s.ss.RecvMsg(&b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s serverStream) Send(b []byte) error { return s.ss.SendMsg(b) }

// Serve blocks serving ln until Stop or GracefulStop.
func (s *Server) Serve(ln net.Listener) error {
	s.metrics.InitializeMetrics(s.grpcserver)
	s.logger.Info("server start", zap.String("name", s.Name), zap.String("address", ln.Addr().String()))
	if err := s.grpcserver.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrapf(err, "grpcconn: serve %s", s.Name)
	}
	return nil
}

// ServeOn listens on a tcp address and serves it.
func (s *Server) ServeOn(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "grpcconn: listen %s", addr)
	}
	return s.Serve(ln)
}

func (s *Server) GracefulStop() {
	s.grpcserver.GracefulStop()
	s.logger.Info("server stopped", zap.String("name", s.Name))
}

func (s *Server) Stop() {
	s.grpcserver.Stop()
}

// GRPC exposes the underlying server, for registering plain grpc
// services next to rpc ones.
func (s *Server) GRPC() *grpc.Server { return s.grpcserver }
