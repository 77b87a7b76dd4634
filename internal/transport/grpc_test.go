package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

func newGRPC(t *testing.T) *GRPCTransport {
	t.Helper()
	tr, err := NewGRPCTransport("127.0.0.1:0", 2*time.Second, pkg.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestGRPCTransport_SendRecv(t *testing.T) {
	a, b := newGRPC(t), newGRPC(t)

	require.NoError(t, a.Send(b.Addr(), chord.NewLookup(612, a.Addr())))

	msg, err := b.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, chord.MethodSuccessor, msg.Method)
	assert.Equal(t, a.Addr(), msg.Sender)

	var args chord.LookupArgs
	require.NoError(t, msg.Decode(&args))
	assert.Equal(t, uint64(612), args.ID)
	assert.Equal(t, a.Addr(), args.From)

	// the connection is pooled
	require.NoError(t, a.Send(b.Addr(), chord.NewPredecessorRequest()))
	a.connMu.RLock()
	assert.Len(t, a.connections, 1)
	a.connMu.RUnlock()
}

func TestGRPCTransport_SendToSelf(t *testing.T) {
	a := newGRPC(t)
	require.NoError(t, a.Send(a.Addr(), chord.NewPredecessorRequest()))

	msg, err := a.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, chord.MethodPredecessor, msg.Method)
}

func TestGRPCTransport_RecvTimeout(t *testing.T) {
	a := newGRPC(t)
	msg, err := a.Recv(20 * time.Millisecond)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, pkg.ErrTimeout)
}

func TestGRPCTransport_RawPayloads(t *testing.T) {
	a := newGRPC(t)
	conn, err := a.getConnection(a.Addr())
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{name: "empty payload", payload: nil, wantErr: pkg.ErrTimeout},
		{name: "malformed payload", payload: []byte("garbage"), wantErr: pkg.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(tt.payload), new(emptypb.Empty)))

			msg, err := a.Recv(2 * time.Second)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGRPCTransport_SenderHostFromPeer(t *testing.T) {
	a := newGRPC(t)
	conn, err := a.getConnection(a.Addr())
	require.NoError(t, err)

	data, err := Encode(&chord.Message{Method: chord.MethodPredecessor, Sender: "10.9.9.9:4242"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(data), new(emptypb.Empty)))

	msg, err := a.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4242", msg.Sender)
}

func TestSenderFrom(t *testing.T) {
	tests := []struct {
		name     string
		claimed  string
		peerHost string
		want     string
	}{
		{name: "peer host replaces claimed host", claimed: "10.0.0.1:5000", peerHost: "192.168.1.7", want: "192.168.1.7:5000"},
		{name: "ipv6 peer", claimed: "127.0.0.1:5000", peerHost: "::1", want: "[::1]:5000"},
		{name: "no peer", claimed: "10.0.0.1:5000", want: "10.0.0.1:5000"},
		{name: "no claimed port", claimed: "", peerHost: "192.168.1.7", want: ""},
		{name: "garbage claim", claimed: "nonsense", peerHost: "192.168.1.7", want: "nonsense"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, senderFrom(tt.claimed, tt.peerHost))
		})
	}
}

func TestGRPCTransport_SendToUnreachablePeer(t *testing.T) {
	a := newGRPC(t)
	b := newGRPC(t)
	addr := b.Addr()
	require.NoError(t, b.Close())

	err := a.Send(addr, chord.NewPredecessorRequest())
	assert.Error(t, err)
}

func TestGRPCTransport_Close(t *testing.T) {
	a := newGRPC(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Recv(10 * time.Millisecond)
	assert.ErrorIs(t, err, pkg.ErrTransportClosed)
	assert.ErrorIs(t, a.Send("127.0.0.1:1", chord.NewPredecessorRequest()), pkg.ErrTransportClosed)

	_, err = a.Deliver(context.Background(), wrapperspb.Bytes([]byte{1}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(pkg.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: deliverMethod}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
