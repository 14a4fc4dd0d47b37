package rpc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hysios/protomx/internal/rpctest"
	"github.com/hysios/protomx/rpc"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Note = rpctest.Note

func setup(t *testing.T) (*rpc.Local, *rpctest.Echo) {
	t.Helper()
	impl := rpctest.NewEcho()
	l := rpc.NewLocal()
	l.RegisterService(&rpctest.EchoDesc, impl)
	return l, impl
}

func TestUnary(t *testing.T) {
	l, _ := setup(t)
	resp, err := rpc.CallUnary[Note](context.Background(), l, "/rt.Echo/Say", &Note{Text: "hi", N: 1})
	require.NoError(t, err)
	assert.Equal(t, &Note{Text: "HI", N: 2}, resp)

	_, err = rpc.CallUnary[Note](context.Background(), l, "/rt.Echo/Say", &Note{})
	assert.True(t, errors.Is(err, rpc.ErrUnimplemented), "%v", err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = rpc.CallUnary[Note](context.Background(), l, "/rt.Echo/Nope", &Note{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestHandlerPanic(t *testing.T) {
	l, _ := setup(t)
	_, err := rpc.CallUnary[Note](context.Background(), l, "/rt.Echo/Say", &Note{Text: "panic"})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryStream(t *testing.T) {
	l, _ := setup(t)
	s, err := rpc.CallUnaryStream[Note](context.Background(), l, "/rt.Echo/Count", &Note{Text: "x", N: 3})
	require.NoError(t, err)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int32(2), all[2].N)

	_, err = s.Recv()
	assert.Equal(t, rpc.ErrStreamClosed, err)
}

func TestStreamEarlyClose(t *testing.T) {
	l, impl := setup(t)
	s, err := rpc.CallUnaryStream[Note](context.Background(), l, "/rt.Echo/Count", &Note{Text: "x", N: -1})
	require.NoError(t, err)

	first, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, int32(0), first.N)
	require.NoError(t, s.Close())

	select {
	case <-impl.Released:
	case <-time.After(time.Second):
		t.Fatal("handler still running after Close")
	}
}

func TestStreamCancel(t *testing.T) {
	l, impl := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := rpc.CallUnaryStream[Note](ctx, l, "/rt.Echo/Count", &Note{Text: "x", N: -1})
	require.NoError(t, err)
	_, err = s.Recv()
	require.NoError(t, err)

	cancel()
	for err == nil {
		_, err = s.Recv()
	}
	assert.Equal(t, codes.Canceled, status.Code(err))
	<-impl.Released
}

func TestStreamUnary(t *testing.T) {
	l, _ := setup(t)
	resp, err := rpc.CallStreamUnary[*Note, Note](context.Background(), l, "/rt.Echo/Sum", rpctest.Notes(1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, int32(10), resp.N)
}

func TestStreamStream(t *testing.T) {
	l, _ := setup(t)
	s, err := rpc.CallStreamStream[*Note, Note](context.Background(), l, "/rt.Echo/Chat", rpctest.Notes(5, 6))
	require.NoError(t, err)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n!", all[0].Text)
	assert.Equal(t, int32(6), all[1].N)
}

func TestDuplicateRegister(t *testing.T) {
	l, impl := setup(t)
	assert.Panics(t, func() { l.RegisterService(&rpctest.EchoDesc, impl) })
}
