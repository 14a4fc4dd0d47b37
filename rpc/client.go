package rpc

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hysios/protomx"
	"github.com/hysios/protomx/descriptor"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// message is the pointer type of a generated message struct.
type message[T any] interface {
	*T
	protomx.Message
}

func decode[T any, P message[T]](b []byte) (P, error) {
	m := P(new(T))
	if err := protomx.Unmarshal(b, m); err != nil {
		return nil, status.Errorf(codes.Internal, "rpc: decode %s: %v", m.Descriptor().FullName, err)
	}
	return m, nil
}

// CallUnary sends req and waits for the single response.
func CallUnary[Resp any, P message[Resp]](ctx context.Context, conn Conn, method string, req protomx.Message) (P, error) {
	b, err := protomx.Marshal(req)
	if err != nil {
		return nil, err
	}
	out, err := conn.Invoke(ctx, method, b)
	if err != nil {
		return nil, err
	}
	return decode[Resp, P](out)
}

// CallUnaryStream sends req and returns the stream of responses.
func CallUnaryStream[Resp any, P message[Resp]](ctx context.Context, conn Conn, method string, req protomx.Message) (*Stream[P], error) {
	b, err := protomx.Marshal(req)
	if err != nil {
		return nil, err
	}
	s, err := open[Resp, P](ctx, conn, method, descriptor.UnaryStream)
	if err != nil {
		return nil, err
	}
	if err := s.raw.Send(b); err != nil && !errors.Is(err, io.EOF) {
		s.release()
		return nil, err
	}
	if err := s.raw.CloseSend(); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

// CallStreamUnary sends every request read from reqs until it is closed,
// then waits for the single response.
func CallStreamUnary[Req protomx.Message, Resp any, P message[Resp]](ctx context.Context, conn Conn, method string, reqs <-chan Req) (P, error) {
	s, err := open[Resp, P](ctx, conn, method, descriptor.StreamUnary)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	startSender(s, reqs)
	resp, err := s.Recv()
	if errors.Is(err, io.EOF) {
		return nil, status.Errorf(codes.Internal, "rpc: %s finished without a response", method)
	}
	return resp, err
}

// CallStreamStream sends requests read from reqs while responses are
// received from the returned stream.
func CallStreamStream[Req protomx.Message, Resp any, P message[Resp]](ctx context.Context, conn Conn, method string, reqs <-chan Req) (*Stream[P], error) {
	s, err := open[Resp, P](ctx, conn, method, descriptor.StreamStream)
	if err != nil {
		return nil, err
	}
	startSender(s, reqs)
	return s, nil
}

func open[Resp any, P message[Resp]](ctx context.Context, conn Conn, method string, c descriptor.MethodCardinality) (*Stream[P], error) {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	raw, err := conn.NewStream(gctx, method, streamDesc(c))
	if err != nil {
		cancel()
		return nil, err
	}
	return &Stream[P]{
		raw:    raw,
		ctx:    gctx,
		cancel: cancel,
		group:  group,
		decode: decode[Resp, P],
	}, nil
}

// Stream is a lazily received sequence of responses. Recv returns io.EOF
// after the last one. The underlying transport stream is released when
// Recv reports any error, when Close is called, or when the context of
// the call is cancelled.
type Stream[T any] struct {
	raw    RawStream
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	decode func([]byte) (T, error)

	mu      sync.Mutex
	sending bool
	closed  bool
	err     error
	once    sync.Once
}

// startSender feeds reqs into the stream from a goroutine of its group.
func startSender[Req protomx.Message, T any](s *Stream[T], reqs <-chan Req) {
	s.sending = true
	s.group.Go(func() error {
		return sendAll(s.ctx, s.raw, reqs)
	})
}

func sendAll[Req protomx.Message](ctx context.Context, raw RawStream, reqs <-chan Req) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqs:
			if !ok {
				return raw.CloseSend()
			}
			b, err := protomx.Marshal(req)
			if err != nil {
				return err
			}
			if err := raw.Send(b); err != nil {
				if errors.Is(err, io.EOF) {
					// the server is done; its status arrives through Recv
					return nil
				}
				return err
			}
		}
	}
}

func (s *Stream[T]) Recv() (T, error) {
	var zero T
	s.mu.Lock()
	closed, err := s.closed, s.err
	s.mu.Unlock()
	if closed {
		return zero, ErrStreamClosed
	}
	if err != nil {
		return zero, err
	}

	b, err := s.raw.Recv()
	if err == nil {
		var v T
		if v, err = s.decode(b); err == nil {
			return v, nil
		}
	}

	if s.sending {
		s.cancel()
		if serr := s.group.Wait(); serr != nil && !errors.Is(err, io.EOF) {
			err = serr
		}
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.release()
	return zero, err
}

// All receives until the end of the stream.
func (s *Stream[T]) All() ([]T, error) {
	defer s.Close()
	var out []T
	for {
		v, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Close releases the stream. Later calls to Recv return ErrStreamClosed.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.release()
	return nil
}

func (s *Stream[T]) release() {
	s.once.Do(func() {
		s.cancel()
		s.raw.Close()
		s.group.Wait()
	})
}
