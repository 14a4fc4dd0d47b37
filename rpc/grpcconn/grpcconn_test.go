package grpcconn_test

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/hysios/protomx/internal/rpctest"
	"github.com/hysios/protomx/rpc"
	"github.com/hysios/protomx/rpc/grpcconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tj/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type Note = rpctest.Note

func setup(t *testing.T) (*grpcconn.Conn, *rpctest.Echo, *prometheus.Registry) {
	t.Helper()
	var (
		lis  = bufconn.Listen(1 << 20)
		reg  = prometheus.NewRegistry()
		impl = rpctest.NewEcho()
		srv  = grpcconn.NewServer("echo", grpcconn.WithRegisterer(reg))
	)
	srv.RegisterService(&rpctest.EchoDesc, impl)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpcconn.Dial("bufnet", grpcconn.WithDialOptions(
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, impl, reg
}

func TestUnary(t *testing.T) {
	conn, _, _ := setup(t)
	resp, err := rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Say", &Note{Text: "hi", N: 1})
	require.NoError(t, err)
	assert.Equal(t, &Note{Text: "HI", N: 2}, resp)

	_, err = rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Say", &Note{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	assert.True(t, errors.Is(err, rpc.ErrUnimplemented), "%v", err)

	_, err = rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Nope", &Note{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestPanicRecovered(t *testing.T) {
	conn, _, _ := setup(t)
	_, err := rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Say", &Note{Text: "panic"})
	assert.Equal(t, codes.Internal, status.Code(err))

	// the server survives
	_, err = rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Say", &Note{Text: "ok"})
	assert.NoError(t, err)
}

func TestStreams(t *testing.T) {
	conn, _, _ := setup(t)
	ctx := context.Background()

	s, err := rpc.CallUnaryStream[Note](ctx, conn, "/rt.Echo/Count", &Note{Text: "x", N: 4})
	require.NoError(t, err)
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 4)

	sum, err := rpc.CallStreamUnary[*Note, Note](ctx, conn, "/rt.Echo/Sum", rpctest.Notes(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int32(6), sum.N)

	chat, err := rpc.CallStreamStream[*Note, Note](ctx, conn, "/rt.Echo/Chat", rpctest.Notes(7, 8, 9))
	require.NoError(t, err)
	all, err = chat.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "n!", all[2].Text)
	assert.Equal(t, int32(9), all[2].N)
}

func TestStreamRelease(t *testing.T) {
	conn, impl, _ := setup(t)
	s, err := rpc.CallUnaryStream[Note](context.Background(), conn, "/rt.Echo/Count", &Note{Text: "x", N: -1})
	require.NoError(t, err)
	_, err = s.Recv()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Recv()
	assert.Equal(t, rpc.ErrStreamClosed, err)

	select {
	case <-impl.Released:
	case <-time.After(5 * time.Second):
		t.Fatal("handler still running after Close")
	}
}

func TestDeadline(t *testing.T) {
	conn, _, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s, err := rpc.CallUnaryStream[Note](ctx, conn, "/rt.Echo/Count", &Note{Text: "x", N: -1})
	require.NoError(t, err)
	for err == nil {
		_, err = s.Recv()
	}
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestMetrics(t *testing.T) {
	conn, _, reg := setup(t)
	_, err := rpc.CallUnary[Note](context.Background(), conn, "/rt.Echo/Say", &Note{Text: "hi"})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "grpc_server_handled_total")
}

func TestServiceDesc(t *testing.T) {
	gd := grpcconn.ServiceDesc(&rpctest.EchoDesc)
	assert.Equal(t, "rt.Echo", gd.ServiceName)
	require.Len(t, gd.Methods, 1)
	assert.Equal(t, "Say", gd.Methods[0].MethodName)
	require.Len(t, gd.Streams, 3)
	assert.True(t, gd.Streams[0].ServerStreams)
	assert.False(t, gd.Streams[0].ClientStreams)
	assert.True(t, gd.Streams[1].ClientStreams)
	assert.False(t, gd.Streams[1].ServerStreams)
	assert.True(t, gd.Streams[2].ClientStreams && gd.Streams[2].ServerStreams)

	untyped := grpcconn.ServiceDesc(&rpc.ServiceDesc{Name: "x.Y"})
	assert.Equal(t, reflect.TypeOf((*any)(nil)), reflect.TypeOf(untyped.HandlerType))
}
