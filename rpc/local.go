package rpc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hysios/protomx/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Local is an in-process transport: a Registrar for servers and a Conn
// for stubs calling them. Messages still go through the wire codec.
type Local struct {
	mu      sync.RWMutex
	methods map[string]localMethod
	log     *zap.Logger
}

type localMethod struct {
	impl any
	desc *MethodDesc
}

func NewLocal() *Local {
	return &Local{
		methods: make(map[string]localMethod),
		log:     logger.Named(nil, "rpc.local"),
	}
}

// RegisterService panics when a method of desc is already registered, as
// grpc does.
func (l *Local) RegisterService(desc *ServiceDesc, impl any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range desc.Methods {
		md := &desc.Methods[i]
		path := md.Path(desc.Name)
		if _, ok := l.methods[path]; ok {
			panic(fmt.Sprintf("rpc: duplicate method %s", path))
		}
		l.methods[path] = localMethod{impl: impl, desc: md}
	}
	l.log.Debug("register service", zap.String("service", desc.Name), zap.Int("methods", len(desc.Methods)))
}

func (l *Local) Invoke(ctx context.Context, method string, req []byte) ([]byte, error) {
	s, err := l.NewStream(ctx, method, StreamDesc{})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Send(req); err != nil && err != io.EOF {
		return nil, err
	}
	if err := s.CloseSend(); err != nil {
		return nil, err
	}
	resp, err := s.Recv()
	if err == io.EOF {
		return nil, status.Errorf(codes.Internal, "rpc: %s finished without a response", method)
	}
	return resp, err
}

func (l *Local) NewStream(ctx context.Context, method string, _ StreamDesc) (RawStream, error) {
	l.mu.RLock()
	m, ok := l.methods[method]
	l.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "rpc: unknown method %s", method)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &pipe{
		ctx:    ctx,
		cancel: cancel,
		up:     make(chan []byte),
		down:   make(chan []byte),
		done:   make(chan struct{}),
	}
	go p.serve(m, l.log.With(zap.String("method", method)))
	return p, nil
}

// pipe connects one client stream to one running handler.
type pipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	up     chan []byte
	down   chan []byte
	done   chan struct{}
	err    error

	sendOnce sync.Once
	sendDone bool
}

func (p *pipe) serve(m localMethod, log *zap.Logger) {
	defer close(p.done)
	err := recovered(func() error {
		return m.desc.Handler(m.impl, serverSide{p})
	})
	if err != nil {
		log.Debug("handler failed", zap.Error(err))
	}
	p.err = err
	close(p.down)
}

// recovered runs fn, turning a panic into an Internal status.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(codes.Internal, "rpc: panic in handler: %v", r)
		}
	}()
	return fn()
}

func (p *pipe) ctxErr() error {
	return status.FromContextError(p.ctx.Err()).Err()
}

func (p *pipe) Send(b []byte) error {
	if p.sendDone {
		return status.Error(codes.Internal, "rpc: send after CloseSend")
	}
	select {
	case p.up <- b:
		return nil
	case <-p.done:
		return io.EOF
	case <-p.ctx.Done():
		return p.ctxErr()
	}
}

func (p *pipe) CloseSend() error {
	p.sendOnce.Do(func() {
		p.sendDone = true
		close(p.up)
	})
	return nil
}

func (p *pipe) Recv() ([]byte, error) {
	select {
	case b, ok := <-p.down:
		if !ok {
			if p.err != nil {
				return nil, p.err
			}
			return nil, io.EOF
		}
		return b, nil
	case <-p.ctx.Done():
		return nil, p.ctxErr()
	}
}

// Close cancels the call and waits for its handler to return.
func (p *pipe) Close() error {
	p.cancel()
	<-p.done
	return nil
}

type serverSide struct {
	p *pipe
}

func (s serverSide) Context() context.Context { return s.p.ctx }

func (s serverSide) Recv() ([]byte, error) {
	select {
	case b, ok := <-s.p.up:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-s.p.ctx.Done():
		return nil, s.p.ctxErr()
	}
}

func (s serverSide) Send(b []byte) error {
	select {
	case s.p.down <- b:
		return nil
	case <-s.p.ctx.Done():
		return s.p.ctxErr()
	}
}
