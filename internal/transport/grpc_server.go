package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

const (
	datagramService = "chordkv.transport.Datagram"
	deliverMethod   = "/" + datagramService + "/Deliver"

	// inboxSize bounds datagrams buffered between Deliver and Recv.
	inboxSize = 1024
)

// Compile-time check to ensure GRPCTransport implements chord.Transport
var _ chord.Transport = (*GRPCTransport)(nil)

// datagramServer is the server side of the Datagram service.
type datagramServer interface {
	Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

// datagramServiceDesc describes a service with a single unary method,
// Deliver(BytesValue) returns (Empty), whose payload is a msgpack datagram.
var datagramServiceDesc = grpc.ServiceDesc{
	ServiceName: datagramService,
	HandlerType: (*datagramServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chordkv/transport/datagram",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(datagramServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(datagramServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// delivery is one received datagram and the host of the peer that sent it.
type delivery struct {
	data     []byte
	peerHost string
}

// GRPCTransport carries chord messages as unary gRPC calls. Each call is
// one datagram: it is acknowledged on receipt, never answered, and dropped
// when the receiver's inbox is full.
type GRPCTransport struct {
	addr     string
	listener net.Listener
	server   *grpc.Server
	logger   *pkg.Logger

	inbox     chan delivery
	closed    chan struct{}
	closeOnce sync.Once

	// Connection pool
	connections map[string]*grpc.ClientConn
	connMu      sync.RWMutex

	// Default timeout for RPC calls
	timeout time.Duration
}

// NewGRPCTransport starts a gRPC server on listenAddr ("host:port"; port 0
// picks a free one).
func NewGRPCTransport(listenAddr string, timeout time.Duration, logger *pkg.Logger) (*GRPCTransport, error) {
	if logger == nil {
		logger = pkg.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	t := &GRPCTransport{
		addr:        net.JoinHostPort(host, fmt.Sprint(port)),
		listener:    listener,
		logger:      logger.WithFields(pkg.Fields{"component": "grpc_transport"}),
		inbox:       make(chan delivery, inboxSize),
		closed:      make(chan struct{}),
		connections: make(map[string]*grpc.ClientConn),
		timeout:     timeout,
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(4 * 1024 * 1024), // 4MB
		grpc.MaxSendMsgSize(4 * 1024 * 1024), // 4MB
		grpc.UnaryInterceptor(RecoveryInterceptor(t.logger)),
	}
	t.server = grpc.NewServer(opts...)
	t.server.RegisterService(&datagramServiceDesc, t)

	t.logger.Info().
		Str("address", t.addr).
		Msg("Starting gRPC transport")

	go func() {
		if err := t.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	return t, nil
}

// Addr returns the advertised "host:port".
func (t *GRPCTransport) Addr() string {
	return t.addr
}

// Deliver implements the Datagram service.
func (t *GRPCTransport) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	select {
	case <-t.closed:
		return nil, status.Error(codes.Unavailable, "transport closed")
	default:
	}

	d := delivery{data: in.GetValue()}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			d.peerHost = host
		}
	}

	select {
	case t.inbox <- d:
	default:
		t.logger.Debug().Msg("Inbox full, dropping datagram")
	}
	return &emptypb.Empty{}, nil
}

// Recv waits up to timeout for the next delivered datagram.
func (t *GRPCTransport) Recv(timeout time.Duration) (*chord.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-t.inbox:
		msg, err := Decode(d.data)
		if err != nil {
			if errors.Is(err, pkg.ErrMalformedPayload) {
				t.logger.Debug().Err(err).Msg("Malformed datagram")
			}
			return msg, err
		}
		msg.Sender = senderFrom(msg.Sender, d.peerHost)
		return msg, nil
	case <-t.closed:
		return nil, pkg.ErrTransportClosed
	case <-timer.C:
		return nil, pkg.ErrTimeout
	}
}

// senderFrom builds the reply address of a gRPC datagram. The peer's host
// comes from the connection; the port is the listen port the sender claimed,
// since the connection's own port is ephemeral.
func senderFrom(claimed, peerHost string) string {
	if peerHost == "" {
		return claimed
	}
	_, port, err := net.SplitHostPort(claimed)
	if err != nil {
		return claimed
	}
	return net.JoinHostPort(peerHost, port)
}

// Close stops the server and drops pooled connections.
func (t *GRPCTransport) Close() error {
	t.closeOnce.Do(func() {
		t.logger.Info().Msg("Stopping gRPC transport")
		close(t.closed)
		t.server.Stop()
		t.closeConnections()
	})
	return nil
}
