package rpc

import (
	"context"
	"errors"
	"io"

	"github.com/hysios/protomx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sender is the response side of a server streaming handler.
type Sender[T any] interface {
	Send(m T) error
}

// Receiver is the request side of a client streaming handler. Recv
// returns io.EOF after the last request.
type Receiver[T any] interface {
	Recv() (T, error)
}

type sender[T protomx.Message] struct {
	stream ServerStream
}

func (s sender[T]) Send(m T) error {
	b, err := protomx.Marshal(m)
	if err != nil {
		return err
	}
	return s.stream.Send(b)
}

type receiver[T any, P message[T]] struct {
	stream ServerStream
}

func (r receiver[T, P]) Recv() (P, error) {
	b, err := r.stream.Recv()
	if err != nil {
		return nil, err
	}
	m := P(new(T))
	if err := protomx.Unmarshal(b, m); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "rpc: decode %s: %v", m.Descriptor().FullName, err)
	}
	return m, nil
}

func recvOne[T any, P message[T]](s ServerStream) (P, error) {
	req, err := receiver[T, P]{s}.Recv()
	if errors.Is(err, io.EOF) {
		return nil, status.Error(codes.InvalidArgument, "rpc: missing request")
	}
	return req, err
}

// UnaryHandler adapts a unary method of a generated server interface.
func UnaryHandler[Req any, PReq message[Req], Resp protomx.Message](fn func(impl any, ctx context.Context, req PReq) (Resp, error)) Handler {
	return func(impl any, s ServerStream) error {
		req, err := recvOne[Req, PReq](s)
		if err != nil {
			return err
		}
		resp, err := fn(impl, s.Context(), req)
		if err != nil {
			return err
		}
		return sender[Resp]{s}.Send(resp)
	}
}

func UnaryStreamHandler[Req any, PReq message[Req], Resp protomx.Message](fn func(impl any, ctx context.Context, req PReq, out Sender[Resp]) error) Handler {
	return func(impl any, s ServerStream) error {
		req, err := recvOne[Req, PReq](s)
		if err != nil {
			return err
		}
		return fn(impl, s.Context(), req, sender[Resp]{s})
	}
}

func StreamUnaryHandler[Req any, PReq message[Req], Resp protomx.Message](fn func(impl any, ctx context.Context, in Receiver[PReq]) (Resp, error)) Handler {
	return func(impl any, s ServerStream) error {
		resp, err := fn(impl, s.Context(), receiver[Req, PReq]{s})
		if err != nil {
			return err
		}
		return sender[Resp]{s}.Send(resp)
	}
}

func StreamStreamHandler[Req any, PReq message[Req], Resp protomx.Message](fn func(impl any, ctx context.Context, in Receiver[PReq], out Sender[Resp]) error) Handler {
	return func(impl any, s ServerStream) error {
		return fn(impl, s.Context(), receiver[Req, PReq]{s}, sender[Resp]{s})
	}
}
